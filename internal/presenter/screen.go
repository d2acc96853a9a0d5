// Package presenter turns controller snapshots into localized view models and maps
// action ids from the UI onto controller operations.
package presenter

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/message"

	"github.com/MJE43/cash-count-desktop/internal/banknotes"
	"github.com/MJE43/cash-count-desktop/internal/game"
)

// StackDepth is how many notes of the pile are visible at once.
const StackDepth = 3

const (
	ActionStartRound      = "start_round"
	ActionAdvanceNote     = "advance_note"
	ActionSubmitSum       = "submit_sum"
	ActionReturnToMenu    = "return_to_menu"
	ActionViewHistory     = "view_history"
	ActionBackFromHistory = "back_from_history"
)

var ErrUnknownAction = errors.New("unknown action")

// Tone hints how the result screen should be colored.
type Tone string

const (
	ToneNeutral Tone = ""
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
)

type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Note struct {
	Value int    `json:"value"`
	Asset string `json:"asset"`
}

type Input struct {
	Placeholder string `json:"placeholder"`
}

// Screen is everything the frontend needs to draw the current phase.
type Screen struct {
	Seq            uint64     `json:"seq"`
	Phase          game.Phase `json:"phase"`
	Locale         string     `json:"locale,omitempty"`
	Title          string     `json:"title"`
	Lines          []string   `json:"lines"`
	Notes          []Note     `json:"notes"`
	Input          *Input     `json:"input,omitempty"`
	Actions        []Action   `json:"actions"`
	History        []string   `json:"history"`
	Tone           Tone       `json:"tone"`
	ElapsedSeconds float64    `json:"elapsedSeconds"`
	Balance        int        `json:"balance"`
}

// Render builds the screen for snap using p for all text.
func Render(snap game.Snapshot, p *message.Printer) Screen {
	sc := Screen{
		Seq:            snap.Seq,
		Phase:          snap.Phase,
		Lines:          []string{},
		Notes:          []Note{},
		Actions:        []Action{},
		History:        []string{},
		ElapsedSeconds: snap.ElapsedSeconds,
		Balance:        snap.Balance,
	}
	action := func(id, key string) Action {
		return Action{ID: id, Label: p.Sprintf(key)}
	}

	switch snap.Phase {
	case game.PhaseMenu:
		sc.Title = p.Sprintf("game.app.title")
		sc.Lines = append(sc.Lines, p.Sprintf("game.menu.balance", snap.Balance))
		sc.Actions = append(sc.Actions,
			action(ActionStartRound, "game.action.play"),
			action(ActionViewHistory, "game.action.history"),
		)

	case game.PhasePlaying:
		sc.Title = p.Sprintf("game.playing.counter", snap.CurrentIndex+1, len(snap.Notes))
		sc.Lines = append(sc.Lines,
			p.Sprintf("game.playing.time", clockText(snap.ElapsedSeconds)),
			p.Sprintf("game.playing.balance", snap.Balance),
		)
		for _, v := range snap.Upcoming(StackDepth) {
			sc.Notes = append(sc.Notes, Note{Value: v, Asset: banknotes.AssetKey(v)})
		}
		sc.Actions = append(sc.Actions, action(ActionAdvanceNote, "game.action.swipe"))

	case game.PhaseAwaitingInput:
		sc.Title = p.Sprintf("game.input.title")
		sc.Lines = append(sc.Lines, p.Sprintf("game.playing.time", clockText(snap.ElapsedSeconds)))
		sc.Input = &Input{Placeholder: p.Sprintf("game.input.placeholder")}
		sc.Actions = append(sc.Actions, action(ActionSubmitSum, "game.action.check"))

	case game.PhaseResult:
		sum := snap.LastResult.CorrectSum
		if snap.LastResult.Outcome == game.OutcomeCorrect {
			sc.Tone = ToneSuccess
			sc.Title = p.Sprintf("game.result.correct_title")
			sc.Lines = append(sc.Lines,
				p.Sprintf("game.result.correct", sum),
				p.Sprintf("game.result.credited", sum),
			)
		} else {
			sc.Tone = ToneError
			sc.Title = p.Sprintf("game.result.incorrect_title")
			sc.Lines = append(sc.Lines, p.Sprintf("game.result.incorrect", sum, snap.EnteredSum))
		}
		sc.Lines = append(sc.Lines, p.Sprintf("game.result.time", clockText(snap.ElapsedSeconds)))
		sc.Actions = append(sc.Actions,
			action(ActionStartRound, "game.action.play_again"),
			action(ActionReturnToMenu, "game.action.main_menu"),
		)

	case game.PhaseHistory:
		sc.Title = p.Sprintf("game.history.title")
		if len(snap.History) == 0 {
			sc.Lines = append(sc.Lines, p.Sprintf("game.history.empty"))
		} else {
			correct := 0
			for _, r := range snap.History {
				key := "game.history.incorrect_line"
				if r.Correct {
					key = "game.history.correct_line"
					correct++
				}
				sc.History = append(sc.History, p.Sprintf(key, r.Amount, historyTime(r.ElapsedSeconds)))
			}
			sc.Lines = append(sc.Lines, p.Sprintf("game.history.summary", len(snap.History), correct))
		}
		sc.Actions = append(sc.Actions, action(ActionBackFromHistory, "game.action.back"))
	}

	return sc
}

// clockText always shows one decimal, as the running timer does.
func clockText(seconds float64) string {
	return decimal.NewFromFloat(seconds).StringFixed(1)
}

// historyTime drops a trailing ".0", so a 3 second round reads "3".
func historyTime(seconds float64) string {
	return decimal.NewFromFloat(seconds).Round(1).String()
}

// Controller is the subset of *game.Controller that actions drive.
type Controller interface {
	StartRound() (game.Snapshot, error)
	AdvanceNote() (game.Snapshot, error)
	SubmitSum(raw string) (game.Snapshot, error)
	ReturnToMenu() (game.Snapshot, error)
	ViewHistory() (game.Snapshot, error)
	BackFromHistory() (game.Snapshot, error)
}

// Apply runs the controller operation named by action. input is only read by
// submit_sum.
func Apply(c Controller, action, input string) (game.Snapshot, error) {
	switch action {
	case ActionStartRound:
		return c.StartRound()
	case ActionAdvanceNote:
		return c.AdvanceNote()
	case ActionSubmitSum:
		return c.SubmitSum(input)
	case ActionReturnToMenu:
		return c.ReturnToMenu()
	case ActionViewHistory:
		return c.ViewHistory()
	case ActionBackFromHistory:
		return c.BackFromHistory()
	default:
		return game.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Actions lists every action id Apply accepts.
func Actions() []string {
	return []string{
		ActionStartRound,
		ActionAdvanceNote,
		ActionSubmitSum,
		ActionReturnToMenu,
		ActionViewHistory,
		ActionBackFromHistory,
	}
}
