package cli

import (
	"fmt"
	"io"

	"github.com/okian/ceoorcto/internal/client"
	"github.com/okian/ceoorcto/internal/domain/model"
)

func renderView(out io.Writer, v client.View) {
	switch {
	case v.Err != nil:
		fmt.Fprintf(out, "\nCould not load people for %q: %v\nType reset to retry or loc random.\n> ", v.Location, v.Err)
	case v.State == client.StateGameOver:
		fmt.Fprintf(out, "\nGame over. Score: %d\nType reset to play again.\n> ", v.FinalScore)
	case v.Left != nil && v.Right != nil:
		fmt.Fprintf(out, "\n[%s] streak %d  pair %d/%d\n", v.Location, v.Streak, v.Cursor+1, v.Pairs)
		fmt.Fprintf(out, "  1) %s\n  2) %s\nWho is the CTO? > ", describe(*v.Left), describe(*v.Right))
	}
}

func describe(p model.Profile) string {
	s := p.Name
	if p.Company != "" {
		s += " (" + p.Company + ")"
	}
	if p.Sponsored && p.SponsorName != "" {
		s += " sponsored by " + p.SponsorName
	}
	return s
}

func renderResult(out io.Writer, res client.Result) {
	if res.Correct {
		fmt.Fprintf(out, "Correct, %s is the %s.\n", res.Selected.Name, roleOf(res.Selected))
		return
	}
	fmt.Fprintf(out, "Wrong, %s is the %s. %s is the %s.\n", res.Selected.Name, roleOf(res.Selected), res.Other.Name, roleOf(res.Other))
}

func roleOf(p model.Profile) string {
	if p.Role != "" {
		return p.Role
	}
	if p.IsTechnical() {
		return "CTO"
	}
	return "CEO"
}
