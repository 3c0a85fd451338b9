// Package reply turns a buyer message into a scripted answer.
//
// The rules are a fixed decision table evaluated in order; the first rule
// that matches produces the reply:
//
//  1. empty message: no reply
//  2. availability question: confirm, quoting the price when known
//  3. shipping or payment question: local pickup only
//  4. numeric offer on an item with both price and bottom: counter or accept
//  5. scheduling question: ask for a time
//  6. anything else: a greeting, naming the item when one is matched
package reply

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/marketpilot/internal/catalog"
)

// Intent names the rule that produced a reply.
type Intent string

const (
	IntentAvailability Intent = "availability"
	IntentShipping     Intent = "shipping"
	IntentCounter      Intent = "counter_offer"
	IntentAccept       Intent = "accept_offer"
	IntentScheduling   Intent = "scheduling"
	IntentGreeting     Intent = "greeting"
)

// Reply is the outcome of Infer.
type Reply struct {
	Intent Intent
	Text   string
	// Offer is the amount parsed from the message for offer intents.
	Offer float64
}

var (
	availabilityPhrases = []string{"available", "still available", "is this still"}
	shippingPhrases     = []string{"ship", "shipping", "paypal", "mail"}
	schedulingPhrases   = []string{"pick up", "pickup", "today", "tomorrow", "when"}

	offerPattern = regexp.MustCompile(`\$?\d{2,4}`)
)

// rules in precedence order. greeting always matches.
var rules = []func(lower string, item *catalog.Item) (Reply, bool){
	availability,
	shipping,
	offer,
	scheduling,
	greeting,
}

// Infer returns the reply for message given the matched item, which may be
// nil. The second result is false when no reply should be sent.
func Infer(message string, item *catalog.Item) (Reply, bool) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, false
	}
	lower := strings.ToLower(message)
	for _, apply := range rules {
		if out, ok := apply(lower, item); ok {
			return out, true
		}
	}
	return Reply{}, false
}

func availability(lower string, item *catalog.Item) (Reply, bool) {
	if !containsAny(lower, availabilityPhrases) {
		return Reply{}, false
	}
	subject := "it's"
	if item != nil && item.Title != "" {
		subject = "the " + item.Title + " is"
	}
	text := fmt.Sprintf("Hi! Yes, %s still available.", subject)
	if item != nil && item.HasPrice() {
		text = fmt.Sprintf("Hi! Yes, %s still available for %s.", subject, FormatPrice(*item.Price))
	}
	text += " Let me know when you'd like to see it."
	return Reply{Intent: IntentAvailability, Text: text}, true
}

func shipping(lower string, _ *catalog.Item) (Reply, bool) {
	if !containsAny(lower, shippingPhrases) {
		return Reply{}, false
	}
	return Reply{
		Intent: IntentShipping,
		Text:   "Sorry, I don't ship. It's local pickup only and I take cash or a payment app in person.",
	}, true
}

func offer(lower string, item *catalog.Item) (Reply, bool) {
	if item == nil || !item.HasPrice() || item.Bottom == nil {
		return Reply{}, false
	}
	match := offerPattern.FindString(lower)
	if match == "" {
		return Reply{}, false
	}
	amount, err := strconv.ParseFloat(strings.TrimPrefix(match, "$"), 64)
	if err != nil {
		return Reply{}, false
	}

	bottom := *item.Bottom
	if amount < bottom {
		return Reply{
			Intent: IntentCounter,
			Offer:  amount,
			Text:   fmt.Sprintf("Thanks for the offer! I can't go that low, but I could do %s.", FormatPrice(bottom)),
		}, true
	}
	// Between bottom and price, and at or above price, both accept the offer as made.
	return Reply{
		Intent: IntentAccept,
		Offer:  amount,
		Text:   fmt.Sprintf("%s works for me. When would you like to pick it up?", FormatPrice(amount)),
	}, true
}

func scheduling(lower string, _ *catalog.Item) (Reply, bool) {
	if !containsAny(lower, schedulingPhrases) {
		return Reply{}, false
	}
	return Reply{
		Intent: IntentScheduling,
		Text:   "I'm usually free in the evenings and on weekends. What day and time work best for you?",
	}, true
}

func greeting(_ string, item *catalog.Item) (Reply, bool) {
	if item != nil && item.Title != "" {
		return Reply{
			Intent: IntentGreeting,
			Text:   fmt.Sprintf("Hi! Thanks for your interest in the %s. Feel free to ask any questions or make an offer.", item.Title),
		}, true
	}
	return Reply{
		Intent: IntentGreeting,
		Text:   "Hi! Thanks for reaching out. Feel free to ask any questions or make an offer.",
	}, true
}

// FormatPrice renders an amount as "$100" or "$99.50".
func FormatPrice(amount float64) string {
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("$%d", int64(amount))
	}
	return fmt.Sprintf("$%.2f", amount)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
