package fitb

import "strings"

// pairCategories are worn or sold in pairs and get "a pair of" in prompts.
var pairCategories = []string{"shoes", "pants", "sneakers", "boots", "earrings", "slippers", "sandals"}

// CategoryPrompt builds the CLIP text prompt for a category name.
func CategoryPrompt(category string) string {
	for _, pair := range pairCategories {
		if strings.Contains(category, pair) {
			return "A photo of a pair of " + category + ", on white background"
		}
	}
	return "A photo of a " + category + ", on white background"
}
