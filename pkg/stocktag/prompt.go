package stocktag

import (
	"fmt"
)

const promptTemplate = "Please create a description no more than %d characters long for this image in stock style " +
	"and a list of %d popular single-word keywords, separated with commas. " +
	"Tailor the description to a specific niche and target audience. " +
	"Your keywords are to enhance searchability within that niche. " +
	"If there are architectural decoration elements in the image, be sure to include them. " +
	"If there are inscriptions in a language other than English in the photo, include their translation in the description. " +
	"Be sure to separate the description from the list of keywords with a blank line. " +
	"Don't write anything except a description and a list of keywords. " +
	"If there are any plants in the picture, identify their names and weave them into the description and the keywords list. " +
	"Ensure no word is repeated. Be sure to include in both the description and in the keywords list the next words:"

// Prompt returns the system prompt for an image, naming its location when known.
func Prompt(c *Config, ic *ImageContext) string {
	p := fmt.Sprintf(promptTemplate, c.DescriptionLength, c.KeywordsCount)
	if ic.Country == "" || ic.City == "" {
		return p
	}
	return fmt.Sprintf("%s %s, %s", p, ic.Country, ic.City)
}
