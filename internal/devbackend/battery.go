package devbackend

import "strconv"

// Wire shapes served to the client. Values are JSON numbers, as a real
// backend sends them.

type option struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

type question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	ResponseType string   `json:"responseType"`
	Options      []option `json:"options"`
}

// frequency is the four-point scale every scripted question uses.
var frequency = []option{
	{Value: 0, Label: "Not at all"},
	{Value: 1, Label: "Several days"},
	{Value: 2, Label: "More than half the days"},
	{Value: 3, Label: "Nearly every day"},
}

// staticBattery is the fixed opening questionnaire. It is a demo script,
// not a validated clinical instrument.
var staticBattery = []question{
	scaleQuestion("s1", "Over the last two weeks, how often have you had little interest or pleasure in doing things?"),
	scaleQuestion("s2", "How often have you felt down, low or hopeless?"),
	scaleQuestion("s3", "How often have you had trouble falling or staying asleep, or slept too much?"),
	scaleQuestion("s4", "How often have you felt tired or had little energy?"),
	scaleQuestion("s5", "How often have you felt nervous, anxious or on edge?"),
	scaleQuestion("s6", "How often have you been unable to stop or control worrying?"),
	scaleQuestion("s7", "How often have you had trouble concentrating on everyday things?"),
}

// followUps are served in order during the dynamic loop.
var followUps = []string{
	"You mentioned feeling low. How often has that affected your work or studies?",
	"How often have you avoided people or activities you usually enjoy?",
	"How often have you felt that things will not get better?",
	"How often have you found it hard to relax?",
	"How often have you felt irritable or easily annoyed?",
	"How often have changes in appetite bothered you?",
}

func scaleQuestion(id, text string) question {
	return question{ID: id, Text: text, ResponseType: "singleChoice", Options: frequency}
}

func validOption(q question, value string) (int, bool) {
	for _, o := range q.Options {
		if strconv.Itoa(o.Value) == value {
			return o.Value, true
		}
	}
	return 0, false
}
