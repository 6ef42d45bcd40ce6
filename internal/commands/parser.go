package commands

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

// DefaultPrefixes are the default command prefixes.
var DefaultPrefixes = []string{"/"}

// Parser detects commands at the start of a message.
type Parser struct {
	prefixes  []string
	botName   string
	controlRe *regexp.Regexp
}

// NewParser creates a new command parser. Commands addressed to a bot other
// than botName ("/help@otherbot") are ignored; an empty botName accepts all.
func NewParser(botName string, prefixes ...string) *Parser {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}

	escapedPrefixes := make([]string, len(prefixes))
	for i, p := range prefixes {
		escapedPrefixes[i] = regexp.QuoteMeta(p)
	}
	prefixPattern := strings.Join(escapedPrefixes, "|")

	return &Parser{
		prefixes:  prefixes,
		botName:   strings.TrimPrefix(botName, "@"),
		controlRe: regexp.MustCompile(`^(` + prefixPattern + `)([a-zA-Z][a-zA-Z0-9_]*)(?:@([a-zA-Z0-9_]+))?(?:\s+|$)`),
	}
}

// SetBotName sets the username used to filter addressed commands.
func (p *Parser) SetBotName(name string) {
	p.botName = strings.TrimPrefix(name, "@")
}

// ParseCommand parses a command invocation from text. Entities are the
// message's spans in UTF-16 units; they are returned re-based onto the
// argument text. Returns nil if the text is not a command for this bot.
func (p *Parser) ParseCommand(text string, entities []parsing.EntityRef) *ParsedCommand {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	if trimmed == "" {
		return nil
	}
	lead := len(text) - len(trimmed)

	match := p.controlRe.FindStringSubmatchIndex(trimmed)
	if match == nil {
		return nil
	}

	bot := ""
	if match[6] >= 0 {
		bot = trimmed[match[6]:match[7]]
		if p.botName != "" && !strings.EqualFold(bot, p.botName) {
			return nil
		}
	}

	argsStart := lead + match[1]
	return &ParsedCommand{
		Name:     strings.ToLower(trimmed[match[4]:match[5]]),
		Bot:      bot,
		Args:     strings.TrimRightFunc(text[argsStart:], unicode.IsSpace),
		Entities: parsing.ShiftEntities(entities, parsing.UTF16Len(text[:argsStart])),
		Prefix:   trimmed[match[2]:match[3]],
	}
}

// IsCommand reports whether text starts with a command for this bot.
func (p *Parser) IsCommand(text string) bool {
	return p.ParseCommand(text, nil) != nil
}
