package pipeline

import (
	"github.com/roach88/stagerun/internal/stage"
	"github.com/roach88/stagerun/internal/translate"
)

// Action says what Run would do with a translator.
type Action string

const (
	ActionRun  Action = "run"
	ActionSkip Action = "skip"
)

// Skip reasons.
const (
	ReasonBeforeInput = "before input stage"
	ReasonOutputsDone = "outputs complete"
)

// PlannedStep is one translator in a Plan.
type PlannedStep struct {
	Translator  string
	From        stage.Stage
	To          stage.Stage
	Action      Action
	Reason      string
	Encoding    stage.Encoding
	Destination string
}

// Plan is what Run would do for a request.
type Plan struct {
	Input    stage.Stage
	Encoding stage.Encoding
	Steps    []PlannedStep
	Execute  bool
}

// Plan computes the steps Run would take for req without running any of them.
func (d *Driver) Plan(req Request) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := d.checkEncodings(req); err != nil {
		return nil, err
	}

	p := &Plan{Input: req.Input.Stage(), Encoding: req.Input.Encoding()}
	current := req.Input.Stage()
	stopped := false
	for _, t := range d.translators {
		ps := PlannedStep{
			Translator: translate.Name(t),
			From:       t.InputStage(),
			To:         t.OutputStage(),
		}
		switch {
		case stopped || (req.NoRun && req.done(current)):
			stopped = true
			ps.Action, ps.Reason = ActionSkip, ReasonOutputsDone
		case current != t.InputStage():
			ps.Action, ps.Reason = ActionSkip, ReasonBeforeInput
		default:
			ps.Action = ActionRun
			ps.Destination = req.Outputs[t.OutputStage()]
			ps.Encoding = translate.ResolveEncoding(t.OutputStage(), req.Encodings[t.OutputStage()], ps.Destination)
			current = t.OutputStage()
		}
		p.Steps = append(p.Steps, ps)
	}
	p.Execute = !req.NoRun
	return p, nil
}
