package rules

import (
	"fmt"
	"regexp"
	"slices"
	"unicode/utf8"

	"github.com/castmod/castmod/automod/countstore"
	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/helpers"
	"github.com/castmod/castmod/automod/keyword"
	"github.com/castmod/castmod/automod/registry"
)

// longest configurable regular expression
const maxPatternLength = 512

func castDef(name, friendly, desc string, args ...registry.ArgSchema) registry.Definition {
	return registry.Definition{
		Name:         name,
		FriendlyName: friendly,
		Description:  desc,
		Category:     registry.ScopeCast,
		CheckType:    registry.ScopeCast,
		Invertable:   true,
		Args:         args,
	}
}

func castRules() []engine.Rule {
	embedOpts := []registry.ArgOption{}
	for _, t := range []string{engine.EmbedImage, engine.EmbedVideo, engine.EmbedLink, engine.EmbedCast, engine.EmbedFrame} {
		embedOpts = append(embedOpts, registry.ArgOption{Value: t, Label: t})
	}

	containsText := castDef("containsText", "Contains text", "Cast text contains a string", searchTextArgs()...)
	containsText.AllowMultiple = true
	pattern := castDef("textMatchesPattern", "Matches pattern", "Cast text matches a regular expression",
		registry.ArgSchema{Name: "pattern", Type: registry.ArgString, FriendlyName: "Pattern", Required: true, Regexp: true},
		registry.ArgSchema{Name: "caseInsensitive", Type: registry.ArgBoolean, FriendlyName: "Ignore case", Default: false},
	)
	pattern.AllowMultiple = true

	return []engine.Rule{
		{Definition: containsText, Check: ContainsTextCheck},
		{Definition: pattern, Check: TextMatchesPatternCheck},
		{
			Definition: castDef("containsKeywords", "Contains keywords", "Cast text contains any word or phrase from a list",
				registry.ArgSchema{Name: "keywords", Type: registry.ArgString, FriendlyName: "Keywords (comma separated)", Required: true},
			),
			Check: ContainsKeywordsCheck,
		},
		{
			Definition: castDef("containsLinks", "Contains links", "Cast contains more than a number of links",
				registry.ArgSchema{Name: "maxLinks", Type: registry.ArgNumber, FriendlyName: "Links allowed", Default: float64(0), Min: registry.Float(0)},
			),
			Check: ContainsLinksCheck,
		},
		{
			Definition: castDef("castLength", "Cast length", "Cast text length is within range", minMaxArgs("min", "max", "characters")...),
			Check:      CastLengthCheck,
		},
		{
			Definition: castDef("containsEmbeds", "Contains embeds", "Cast has an embed of one of the selected types",
				registry.ArgSchema{Name: "types", Type: registry.ArgMultiSelect, FriendlyName: "Embed types", Required: true, Options: embedOpts},
			),
			Check: ContainsEmbedsCheck,
		},
		{
			Definition: castDef("castIsReply", "Is a reply", "Cast is a reply to another cast"),
			Check:      CastIsReplyCheck,
		},
		{
			Definition: castDef("containsTooManyMentions", "Too many mentions", "Cast mentions more than a number of users",
				registry.ArgSchema{Name: "maxMentions", Type: registry.ArgNumber, FriendlyName: "Mentions allowed", Required: true, Min: registry.Float(0)},
			),
			Check: ContainsTooManyMentionsCheck,
		},
		{
			Definition: castDef("castRateLimit", "Rate limit", "User has cast in the channel fewer than a number of times in the period",
				registry.ArgSchema{Name: "maxCasts", Type: registry.ArgNumber, FriendlyName: "Casts allowed", Required: true, Min: registry.Float(1)},
				registry.ArgSchema{Name: "period", Type: registry.ArgSelect, FriendlyName: "Per", Default: countstore.PeriodHour, Options: []registry.ArgOption{
					{Value: countstore.PeriodHour, Label: "hour"},
					{Value: countstore.PeriodDay, Label: "day"},
				}},
			),
			Check: CastRateLimitCheck,
		},
	}
}

var errNoCast = fmt.Errorf("cast rule evaluated without a cast")

var _ engine.CheckFunc = ContainsTextCheck

func ContainsTextCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.Cast == nil {
		return engine.CheckResult{}, errNoCast
	}
	return checkContainsText(c, "Cast", c.Cast.Text), nil
}

var _ engine.CheckFunc = TextMatchesPatternCheck

func TextMatchesPatternCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.Cast == nil {
		return engine.CheckResult{}, errNoCast
	}
	expr := c.StringArg("pattern")
	if len(expr) > maxPatternLength {
		return engine.CheckResult{}, fmt.Errorf("pattern longer than %d characters", maxPatternLength)
	}
	if c.BoolArg("caseInsensitive") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return engine.CheckResult{}, fmt.Errorf("compiling pattern: %w", err)
	}
	if re.MatchString(c.Cast.Text) {
		return engine.CheckResult{Result: true, Message: "Cast matches pattern"}, nil
	}
	return engine.CheckResult{Result: false, Message: "Cast does not match pattern"}, nil
}

var _ engine.CheckFunc = ContainsKeywordsCheck

func ContainsKeywordsCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.Cast == nil {
		return engine.CheckResult{}, errNoCast
	}
	kws := keyword.ParseKeywordList(c.StringArg("keywords"))
	if kw, ok := keyword.MatchKeywords(c.Cast.Text, kws); ok {
		return engine.CheckResult{Result: true, Message: fmt.Sprintf("Cast contains keyword %q", kw)}, nil
	}
	return engine.CheckResult{Result: false, Message: "Cast does not contain any keywords"}, nil
}

// links in the cast text, plus link and frame embeds not already in the text
func countLinks(cast *engine.Cast) int {
	links := helpers.ExtractTextURLs(cast.Text)
	for _, e := range cast.Embeds {
		if (e.Type == engine.EmbedLink || e.Type == engine.EmbedFrame) && e.URL != "" {
			links = append(links, e.URL)
		}
	}
	return len(helpers.DedupeStrings(links))
}

var _ engine.CheckFunc = ContainsLinksCheck

func ContainsLinksCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.Cast == nil {
		return engine.CheckResult{}, errNoCast
	}
	max, _ := c.NumberArg("maxLinks")
	n := countLinks(c.Cast)
	if float64(n) > max {
		return engine.CheckResult{Result: true, Message: fmt.Sprintf("Cast has %d links, more than %s", n, fmtNum(max))}, nil
	}
	return engine.CheckResult{Result: false, Message: fmt.Sprintf("Cast has %d links", n)}, nil
}

var _ engine.CheckFunc = CastLengthCheck

func CastLengthCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.Cast == nil {
		return engine.CheckResult{}, errNoCast
	}
	return checkRange(c, "Cast length", float64(utf8.RuneCountInString(c.Cast.Text)), "min", "max"), nil
}

var _ engine.CheckFunc = ContainsEmbedsCheck

func ContainsEmbedsCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.Cast == nil {
		return engine.CheckResult{}, errNoCast
	}
	types := c.StringsArg("types")
	for _, e := range c.Cast.Embeds {
		if slices.Contains(types, e.Type) {
			return engine.CheckResult{Result: true, Message: fmt.Sprintf("Cast contains an embed of type %s", e.Type)}, nil
		}
	}
	return engine.CheckResult{Result: false, Message: "Cast does not contain matching embeds"}, nil
}

var _ engine.CheckFunc = CastIsReplyCheck

func CastIsReplyCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.Cast == nil {
		return engine.CheckResult{}, errNoCast
	}
	if c.Cast.IsReply() {
		return engine.CheckResult{Result: true, Message: "Cast is a reply"}, nil
	}
	return engine.CheckResult{Result: false, Message: "Cast is not a reply"}, nil
}

var _ engine.CheckFunc = ContainsTooManyMentionsCheck

func ContainsTooManyMentionsCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.Cast == nil {
		return engine.CheckResult{}, errNoCast
	}
	max, _ := c.NumberArg("maxMentions")
	n := len(c.Cast.MentionedFids)
	if float64(n) > max {
		return engine.CheckResult{Result: true, Message: fmt.Sprintf("Cast mentions %d users, more than %s", n, fmtNum(max))}, nil
	}
	return engine.CheckResult{Result: false, Message: fmt.Sprintf("Cast mentions %d users", n)}, nil
}

var _ engine.CheckFunc = CastRateLimitCheck

// Passes while the user's prior casts in the channel for the period are below maxCasts. The current cast is counted by the engine after evaluation.
func CastRateLimitCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	max, _ := c.NumberArg("maxCasts")
	period := c.StringArg("period")
	if !countstore.ValidPeriod(period) || period == countstore.PeriodTotal {
		return engine.CheckResult{}, fmt.Errorf("unsupported rate limit period: %q", period)
	}
	n := c.GetCount(engine.ChannelCastsCounter, fmt.Sprintf("%s:%d", c.Channel.ID, c.User.Fid), period)
	if c.Err != nil {
		return engine.CheckResult{}, c.Err
	}
	if float64(n) >= max {
		return engine.CheckResult{Result: false, Message: fmt.Sprintf("User has cast %d times this %s, limit is %s", n, period, fmtNum(max))}, nil
	}
	return engine.CheckResult{Result: true, Message: fmt.Sprintf("User has cast %d times this %s", n, period)}, nil
}
