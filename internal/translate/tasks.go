package translate

import "github.com/raphaelgruber/urdufact-go/internal/models"

const formattingRules = `Formatting rules:
- Keep English acronyms and abbreviations (IEEE, NASA, UNESCO) in their original form.
- Never start an Urdu sentence with Western numerals, acronyms or other left-to-right text. Put an Urdu word or phrase before them.
- Do not translate or change numerals.
- Write dates in Urdu form, for example "January 1, 2020" becomes "یکم جنوری 2020".
- Translate proper nouns only when a widely accepted Urdu form exists, and not inside organization names.
- Respect masculine and feminine grammatical forms.
- Use formal, fluent Urdu.`

// QA translates question/answer pairs.
var QA = Spec{
	Name: "translate_qa",
	Instructions: "You are an expert Urdu translator. Translate the question and the answer of each question-answer pair from English to Urdu. " +
		"Keep technical terms such as award or organization names transliterated where appropriate.\n\n" + formattingRules,
	Inputs:   []string{models.FieldQuestion, models.FieldAnswer},
	Outputs:  []string{models.FieldQuestionUrdu, models.FieldAnswerUrdu},
	Selector: SelectorConfig{K: 2, FetchK: 20, Lambda: 0.5},
}

// Claims translates claim/label pairs.
var Claims = Spec{
	Name: "translate_claims",
	Instructions: "You are an expert Urdu translator. Translate the claim and its label from English to Urdu. " +
		"The translated claim must keep exactly the meaning of the original so that its truth value does not change.\n\n" + formattingRules,
	Inputs:   []string{models.FieldClaim, models.FieldLabel},
	Outputs:  []string{models.FieldClaimUrdu, models.FieldLabelUrdu},
	Selector: SelectorConfig{K: 3, FetchK: 16, Lambda: 0.5},
}

// Tasks lists the translation tasks by name.
var Tasks = map[string]Spec{
	"qa":     QA,
	"claims": Claims,
}
