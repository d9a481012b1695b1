package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"tasktrack/internal/model"
	"tasktrack/internal/service"
)

var errBadNumber = errors.New("task numbers start at 1")

// splitTags separates "#tag" words from the rest of text.
func splitTags(text string) (string, []string) {
	var words, tags []string
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "#") {
			if name := strings.TrimLeft(field, "#"); name != "" {
				tags = append(tags, name)
			}
			continue
		}
		words = append(words, field)
	}
	return strings.Join(words, " "), tags
}

// parseTagList reads tag names separated by spaces or commas, with or without '#'.
func parseTagList(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\n' || r == '\t'
	})
	var names []string
	for _, field := range fields {
		if name := strings.TrimLeft(field, "#"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseNumber turns a one-based task number from chat into a zero-based position.
func parseNumber(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if n < 1 {
		return 0, errBadNumber
	}
	return n - 1, nil
}

func parseMoveArgs(args string) (int, int, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return 0, 0, errors.New("expected two numbers")
	}
	from, err := parseNumber(fields[0])
	if err != nil {
		return 0, 0, err
	}
	to, err := parseNumber(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

func parseCallbackID(data, prefix string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimPrefix(data, prefix))
}

func shortContent(content string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func formatTags(tags []model.Tag) string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, "#"+escape(tag.Name))
	}
	return strings.Join(names, " ")
}

func formatTaskList(title string, tasks []model.Task) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s</b>\n", title))
	for _, task := range tasks {
		builder.WriteString(service.FormatTaskLine(task))
	}
	return strings.TrimSpace(builder.String())
}

// userMessage turns a service error into a reply for the chat.
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrForbidden):
		return "Task not found."
	case errors.Is(err, service.ErrInvalidPosition):
		return "There is no task with that number."
	case errors.Is(err, service.ErrEmptyContent):
		return "A task needs some text."
	case errors.Is(err, service.ErrEmptyTagName):
		return "A tag needs a name."
	default:
		return fmt.Sprintf("Something went wrong: %s", escape(err.Error()))
	}
}

func escape(s string) string {
	return html.EscapeString(s)
}
