package console

import (
	"strings"

	"github.com/joeycumines/go-prompt"
)

// Colors are the prompt colors.
type Colors struct {
	InputText              prompt.Color
	PrefixText             prompt.Color
	SuggestionText         prompt.Color
	SuggestionBG           prompt.Color
	SelectedSuggestionText prompt.Color
	SelectedSuggestionBG   prompt.Color
	DescriptionText        prompt.Color
	DescriptionBG          prompt.Color
}

// DefaultColors returns the default palette.
func DefaultColors() Colors {
	return Colors{
		InputText:              prompt.Green,
		PrefixText:             prompt.Cyan,
		SuggestionText:         prompt.Yellow,
		SuggestionBG:           prompt.Black,
		SelectedSuggestionText: prompt.Black,
		SelectedSuggestionBG:   prompt.Cyan,
		DescriptionText:        prompt.White,
		DescriptionBG:          prompt.Black,
	}
}

// Apply overrides colors from a name to color-name map, as read from the
// config file. Keys: input, prefix, suggestion_text, suggestion_background,
// selected_suggestion_text, selected_suggestion_background,
// description_text, description_background. Unknown keys are returned.
func (c *Colors) Apply(m map[string]string) (unknown []string) {
	for k, v := range m {
		var dst *prompt.Color
		switch k {
		case "input":
			dst = &c.InputText
		case "prefix":
			dst = &c.PrefixText
		case "suggestion_text":
			dst = &c.SuggestionText
		case "suggestion_background":
			dst = &c.SuggestionBG
		case "selected_suggestion_text":
			dst = &c.SelectedSuggestionText
		case "selected_suggestion_background":
			dst = &c.SelectedSuggestionBG
		case "description_text":
			dst = &c.DescriptionText
		case "description_background":
			dst = &c.DescriptionBG
		default:
			unknown = append(unknown, k)
			continue
		}
		if v != "" {
			*dst = ParseColor(v)
		}
	}
	return unknown
}

// ParseColor converts a color name to a prompt.Color. Unknown names map to
// the terminal default.
func ParseColor(name string) prompt.Color {
	switch strings.ToLower(name) {
	case "black":
		return prompt.Black
	case "darkred":
		return prompt.DarkRed
	case "darkgreen":
		return prompt.DarkGreen
	case "brown":
		return prompt.Brown
	case "darkblue":
		return prompt.DarkBlue
	case "purple":
		return prompt.Purple
	case "cyan":
		return prompt.Cyan
	case "lightgray":
		return prompt.LightGray
	case "darkgray":
		return prompt.DarkGray
	case "red":
		return prompt.Red
	case "green":
		return prompt.Green
	case "yellow":
		return prompt.Yellow
	case "blue":
		return prompt.Blue
	case "fuchsia":
		return prompt.Fuchsia
	case "turquoise":
		return prompt.Turquoise
	case "white":
		return prompt.White
	default:
		return prompt.DefaultColor
	}
}
