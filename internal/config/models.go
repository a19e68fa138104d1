package config

import (
	"fmt"
	"io"
	"strings"
)

// Recommendation describes one suggested judge model.
type Recommendation struct {
	Category string
	Model    string
	Pros     []string
	Cons     []string
}

// Recommendations returns the suggested judge models in display order.
func Recommendations() []Recommendation {
	return []Recommendation{
		{
			Category: "cost_effective",
			Model:    "gemini-1.5-flash",
			Pros:     []string{"Very cheap (~$0.075/1M tokens)", "Fast", "Good for CI/CD"},
			Cons:     []string{"Slightly less accurate than premium models"},
		},
		{
			Category: "best_accuracy",
			Model:    "claude-3-5-sonnet-20241022",
			Pros:     []string{"Superior reasoning", "Best for complex SQL", "Excellent context understanding"},
			Cons:     []string{"More expensive", "Slower than Flash models"},
		},
		{
			Category: "balanced",
			Model:    "gemini-1.5-pro",
			Pros:     []string{"Good accuracy", "Reasonable cost", "Large context window"},
			Cons:     []string{"Slower than Flash"},
		},
		{
			Category: "free_local",
			Model:    "ollama/qwen2.5-coder:7b",
			Pros:     []string{"Completely free", "No API limits", "Privacy"},
			Cons:     []string{"Requires local GPU", "Slower", "Less accurate"},
		},
	}
}

// PrintRecommendations writes the model table to w.
func PrintRecommendations(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Available model options:"); err != nil {
		return err
	}
	for _, r := range Recommendations() {
		_, err := fmt.Fprintf(w, "\n  %s:\n    Model:    %s\n    Provider: %s\n    Pros:     %s\n    Cons:     %s\n",
			title(r.Category), r.Model, ProviderFor(r.Model),
			strings.Join(r.Pros, ", "), strings.Join(r.Cons, ", "))
		if err != nil {
			return err
		}
	}
	return nil
}

func title(category string) string {
	words := strings.Split(category, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
