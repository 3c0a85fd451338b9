// internal/browser/selectors.go
package browser

import (
	"fmt"
	"strings"
)

// Each strategy list is tried in order; the first selector with a match wins.
// Lists mix XPath and CSS, both understood by chromedp.BySearch.

var (
	loginEmailStrategies = []string{
		"#email",
		"//input[@name='email']",
		"input[type='email']",
	}
	loginPasswordStrategies = []string{
		"#pass",
		"//input[@name='pass']",
		"input[type='password']",
	}

	conversationRowStrategies = []string{
		"div[role='grid'] div[role='row']",
		"//div[@role='row'][.//a[contains(@href, '/t/')]]",
		"//a[contains(@href, '/messages/t/') or contains(@href, '/marketplace/t/')]",
	}

	composerStrategies = []string{
		"div[aria-label='Message'][contenteditable='true']",
		"div[role='textbox'][contenteditable='true']",
		"//*[@contenteditable='true' and " + lowerContains("@aria-label", "message") + "]",
	}

	createEntryStrategies = []string{
		"//a[" + lowerContains("@href", "/marketplace/create/item") + "]",
		"//*[@role='button' or self::a or self::button][" + lowerContains("normalize-space(.)", "item for sale") + "]",
		"//*[@role='button' or self::a or self::button][" + lowerContains("normalize-space(.)", "create new listing") + "]",
	}

	photoInputStrategies = []string{
		"input[type='file'][accept*='image']",
		"input[type='file']",
	}

	openConditionStrategies = []string{
		"//label[@role='combobox' and .//span[" + lowerContains("normalize-space(.)", "condition") + "]]",
		"//*[@role='combobox' and (" + lowerContains("@aria-label", "condition") + " or " + lowerContains("@placeholder", "condition") + ")]",
		"//label[" + lowerContains(".", "condition") + "]/following::*[@role='button'][1]",
	}

	firstOptionStrategies = []string{
		"//*[@role='listbox']//*[@role='option'][1]",
		"//*[@role='option'][1]",
	}

	nextStrategies     = enabledButtonStrategies("next")
	publishStrategies  = enabledButtonStrategies("publish", "post")
	uploadBusyStrategy = "//*[@role='progressbar']"
)

// fieldStrategies returns the locators for a labelled input. Label text,
// placeholder and aria-label are matched case-insensitively.
func fieldStrategies(tag, label string) []string {
	title := capitalize(label)
	return []string{
		fmt.Sprintf("//label[%s]//following::%s[1]", lowerContains(".", label), tag),
		fmt.Sprintf("//%s[%s]", tag, lowerContains("@placeholder", label)),
		fmt.Sprintf("//%s[%s]", tag, lowerContains("@aria-label", label)),
		fmt.Sprintf("%s[placeholder*='%s' i]", tag, title),
		fmt.Sprintf("%s[aria-label*='%s' i]", tag, title),
	}
}

var (
	titleStrategies       = append(fieldStrategies("input", "title"), "//input[@type='text'][1]")
	descriptionStrategies = append(fieldStrategies("textarea", "description"), "textarea")
	categoryStrategies    = fieldStrategies("input", "category")
	// The price fallbacks exclude inputs that are also labelled as the title.
	priceStrategies = append(fieldStrategies("input", "price"),
		"//input[@type='number' or @inputmode='numeric'][not("+lowerContains("@aria-label", "title")+")]",
	)
)

// optionStrategies locates a dropdown entry whose visible text contains text.
func optionStrategies(text string) []string {
	match := lowerContains("normalize-space(.)", strings.ToLower(text))
	return []string{
		"//*[@role='listbox']//*[@role='option'][" + match + "]",
		"//*[@role='option' or @role='menuitem' or @role='radio'][" + match + "]",
		"//*[@role='dialog' or @role='menu' or @role='listbox']//span[" + match + "]",
	}
}

func enabledButtonStrategies(labels ...string) []string {
	var out []string
	for _, l := range labels {
		out = append(out,
			fmt.Sprintf("//*[@role='button' and @aria-label=%s and not(@aria-disabled='true')]", xpathLiteral(capitalize(l))),
			fmt.Sprintf("//*[@role='button' and not(@aria-disabled='true')][.//span[%s]]", exactLower("normalize-space(.)", l)),
			fmt.Sprintf("//button[not(@disabled)][%s]", exactLower("normalize-space(.)", l)),
		)
	}
	return out
}

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

// lowerContains builds an XPath 1.0 case-insensitive substring test.
// needle must already be lowercase.
func lowerContains(expr, needle string) string {
	return fmt.Sprintf("contains(translate(%s, '%s', '%s'), %s)", expr, upperAlpha, lowerAlpha, xpathLiteral(needle))
}

func exactLower(expr, value string) string {
	return fmt.Sprintf("translate(%s, '%s', '%s')=%s", expr, upperAlpha, lowerAlpha, xpathLiteral(strings.ToLower(value)))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape syntax.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
