package extraction

import "strings"

const promptTemplate = `You are an inventory intake assistant. Identify the item in the image and generate a structured record.

Output strictly in the following JSON format (no prices, donor information, or marketing language):

{
  "name": "Item name (e.g., Laptop Computer)",
  "category": "Category > Subcategory (e.g., Electronics > Computers)",
  "condition": "Good / Fair / Worn",
  "summary": "Objective description (1-2 sentences)",
  "keywords": ["search", "keywords", "in", "english"]
}

Note: `

// BuildPrompt returns the intake instruction with the volunteer's note
// appended, or "None" when there is no note.
func BuildPrompt(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		note = "None"
	}
	return promptTemplate + note
}
