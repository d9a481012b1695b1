package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"tasktrack/internal/model"
	"tasktrack/internal/service"
)

// historyDays limits how many days /history shows.
const historyDays = 7

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your task list in order.</b>\n\n", escape(name)) + helpText
	return b.sendText(msg.Chat.ID, text)
}

const helpText = "Commands:\n" +
	"• /new &lt;text&gt; #tag — add a task (without text I will ask)\n" +
	"• /tasks [#tag] — show tasks, optionally only those with every given tag\n" +
	"• /move &lt;n&gt; &lt;m&gt; — move task n to place m\n" +
	"• /done &lt;n&gt; — mark task n done\n" +
	"• /undo &lt;n&gt; — reopen task n\n" +
	"• /tag &lt;n&gt; #a #b — replace the tags of task n\n" +
	"• /delete &lt;n&gt; — delete task n\n" +
	"• /tags — list your tags\n" +
	"• /deltag &lt;name&gt; — delete a tag\n" +
	"• /history — tasks completed recently\n" +
	"• /report — summary right now\n" +
	"• /cancel — cancel the current dialog"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+helpText)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.summary.DailySummary(ctx, *user, b.now().In(b.loc))
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleNew(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.startNewTaskConversation(ctx, msg)
	}
	content, tags := splitTags(args)
	return b.finishTaskCreation(ctx, msg.From, msg.Chat.ID, content, tags)
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	log.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.clearConfirmation(msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageContent})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what needs doing?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageContent:
		content, inline := splitTags(text)
		if content == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The task needs some text.", cancelKeyboard())
		}
		if len(inline) > 0 {
			b.clearConversation(msg.From.ID)
			return b.finishTaskCreation(ctx, msg.From, msg.Chat.ID, content, inline)
		}
		state.content = content
		state.stage = stageTags

		user, err := b.ensureUser(ctx, msg.From)
		if err != nil {
			return err
		}
		existing, err := b.tags.ListByUser(ctx, user.ID)
		if err != nil {
			existing = nil
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 <b>Step 2:</b> tags, separated by spaces (or «Skip»).", tagKeyboard(existing))
	case stageTags:
		var tags []string
		if !isSkipInput(text) {
			tags = parseTagList(text)
		}
		content := state.content
		b.clearConversation(msg.From.ID)
		return b.finishTaskCreation(ctx, msg.From, msg.Chat.ID, content, tags)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Dialog reset. Try /new again.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, chatID int64, content string, tags []string) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.tasks.Create(ctx, user.ID, service.TaskInput{Content: content, Tags: service.TagNames(tags...)})
	if err != nil {
		return b.sendText(chatID, userMessage(err))
	}
	log.Printf("[info] task created id=%s user=%d position=%d", task.ID, user.ID, task.Position)

	text := fmt.Sprintf("✅ Added as <b>%d</b>: %s", task.Position+1, escape(task.Content))
	if len(task.Tags) > 0 {
		text += " <i>" + formatTags(task.Tags) + "</i>"
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	var filter service.TaskFilter
	title := "Tasks"
	if names := parseTagList(msg.CommandArguments()); len(names) > 0 {
		for _, name := range names {
			tag, err := b.tags.Find(ctx, user.ID, name)
			if err != nil {
				if errors.Is(err, service.ErrNotFound) {
					return b.sendText(msg.Chat.ID, fmt.Sprintf("You have no tag #%s.", escape(name)))
				}
				return b.sendText(msg.Chat.ID, userMessage(err))
			}
			filter.TagIDs = append(filter.TagIDs, tag.ID)
		}
		title = "Tasks tagged " + formatTags(tagsFromNames(names))
	}

	log.Printf("[info] list tasks for user=%d", user.ID)
	return b.sendTaskList(ctx, msg.Chat.ID, user, filter, title)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User, filter service.TaskFilter, title string) error {
	tasks, err := b.tasks.List(ctx, user.ID, filter)
	if err != nil {
		return b.sendText(chatID, userMessage(err))
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "No tasks here. Add one with /new.")
	}

	text := formatTaskList(title, tasks)
	if kb, ok := taskListKeyboard(tasks); ok {
		return b.sendWithReplyMarkup(chatID, text, kb)
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleMove(ctx context.Context, msg *tgbotapi.Message) error {
	from, to, err := parseMoveArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Usage: /move 3 1 (%s)", escape(err.Error())))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.tasks.AtPosition(ctx, user.ID, from)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	moved, err := b.tasks.Move(ctx, user.ID, task.ID, to)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	log.Printf("[info] task moved id=%s user=%d from=%d to=%d", moved.ID, user.ID, from, to)
	return b.sendTaskList(ctx, msg.Chat.ID, user, service.TaskFilter{}, "Tasks")
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	task, user, ok, err := b.taskFromArgs(ctx, msg, "/done 2")
	if !ok {
		return err
	}
	return b.completeTask(ctx, msg.Chat.ID, user, task.ID)
}

func (b *Bot) handleUndo(ctx context.Context, msg *tgbotapi.Message) error {
	task, user, ok, err := b.taskFromArgs(ctx, msg, "/undo 2")
	if !ok {
		return err
	}
	if !task.Completed {
		return b.sendText(msg.Chat.ID, "That task is still open.")
	}
	reopened, err := b.tasks.Uncomplete(ctx, user.ID, task.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("↩️ Reopened: %s", escape(reopened.Content)))
}

func (b *Bot) handleTag(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return b.sendText(msg.Chat.ID, "Usage: /tag 2 #work #urgent (no tags clears them)")
	}
	position, err := parseNumber(args[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := b.tasks.AtPosition(ctx, user.ID, position)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}

	tags, err := b.tags.Reconcile(ctx, user.ID, task.ID, service.TagNames(parseTagList(strings.Join(args[1:], " "))...))
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	if len(tags) == 0 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🏷 Tags cleared on %d.", position+1))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🏷 Task %d: %s", position+1, formatTags(tags)))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	task, _, ok, err := b.taskFromArgs(ctx, msg, "/delete 2")
	if !ok {
		return err
	}
	return b.askDeleteConfirmation(msg.Chat.ID, msg.From.ID, *task)
}

func (b *Bot) askDeleteConfirmation(chatID, userID int64, task model.Task) error {
	b.clearConversation(userID)
	b.setConfirmation(userID, confirmationRequest{taskID: task.ID, content: task.Content})
	text := fmt.Sprintf("Delete task %d «%s»?", task.Position+1, escape(shortContent(task.Content, 60)))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		user, err := b.ensureUser(ctx, msg.From)
		if err != nil {
			return err
		}
		if err := b.tasks.Delete(ctx, user.ID, req.taskID); err != nil {
			return b.sendText(msg.Chat.ID, userMessage(err))
		}
		log.Printf("[info] task deleted id=%s user=%d", req.taskID, user.ID)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Deleted «%s».", escape(shortContent(req.content, 60))))
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Kept it.")
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Confirm or cancel the deletion.", confirmKeyboard())
	}
}

func (b *Bot) handleTags(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tags, err := b.tags.ListByUser(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	if len(tags) == 0 {
		return b.sendText(msg.Chat.ID, "No tags yet. Add them with /new or /tag.")
	}
	return b.sendText(msg.Chat.ID, "🏷 <b>Tags</b>\n"+formatTags(tags))
}

func (b *Bot) handleDeleteTag(ctx context.Context, msg *tgbotapi.Message) error {
	names := parseTagList(msg.CommandArguments())
	if len(names) != 1 {
		return b.sendText(msg.Chat.ID, "Usage: /deltag work")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tag, err := b.tags.Find(ctx, user.ID, names[0])
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("You have no tag #%s.", escape(names[0])))
		}
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	removed, err := b.tags.Remove(ctx, user.ID, tag.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	if !removed {
		return b.sendText(msg.Chat.ID, "That tag is already gone.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Tag #%s deleted.", escape(tag.Name)))
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	days, err := b.tasks.CompletedByDay(ctx, user.ID, b.loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	if len(days) == 0 {
		return b.sendText(msg.Chat.ID, "Nothing completed yet.")
	}
	if len(days) > historyDays {
		days = days[:historyDays]
	}

	var builder strings.Builder
	builder.WriteString("✅ <b>Completed</b>\n")
	for _, day := range days {
		builder.WriteString(fmt.Sprintf("\n<b>%s</b> · %d\n", day.Date.Format("Mon 2006-01-02"), len(day.Tasks)))
		for _, task := range day.Tasks {
			builder.WriteString(fmt.Sprintf("✔️ %s\n", escape(task.Content)))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		log.Printf("[info] callback complete user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbCompletePrefix))
		b.ackCallback(cb, "")
		taskID, err := parseCallbackID(data, cbCompletePrefix)
		if err != nil {
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		return b.completeTask(ctx, chatID, user, taskID)
	case strings.HasPrefix(data, cbUndoPrefix):
		log.Printf("[info] callback undo user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbUndoPrefix))
		taskID, err := parseCallbackID(data, cbUndoPrefix)
		if err != nil {
			b.ackCallback(cb, "")
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			b.ackCallback(cb, "")
			return err
		}
		return b.undoWithinWindow(ctx, cb, user, taskID)
	case strings.HasPrefix(data, cbDeletePrefix):
		log.Printf("[info] callback delete user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbDeletePrefix))
		b.ackCallback(cb, "")
		taskID, err := parseCallbackID(data, cbDeletePrefix)
		if err != nil {
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		task, err := b.tasks.Get(ctx, user.ID, taskID)
		if err != nil {
			return b.sendText(chatID, userMessage(err))
		}
		return b.askDeleteConfirmation(chatID, cb.From.ID, *task)
	default:
		b.ackCallback(cb, "")
		return nil
	}
}

// completeTask marks the task done and offers an Undo button for the grace window.
func (b *Bot) completeTask(ctx context.Context, chatID int64, user *model.User, taskID uuid.UUID) error {
	task, err := b.tasks.Complete(ctx, user.ID, taskID)
	if err != nil {
		return b.sendText(chatID, userMessage(err))
	}
	log.Printf("[info] task completed id=%s user=%d", task.ID, user.ID)

	text := fmt.Sprintf("✅ Done: %s", escape(task.Content))
	if b.undoWindow <= 0 {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, undoKeyboard(*task))
}

// undoWithinWindow reopens the task only while the grace window since completion lasts.
func (b *Bot) undoWithinWindow(ctx context.Context, cb *tgbotapi.CallbackQuery, user *model.User, taskID uuid.UUID) error {
	task, err := b.tasks.Get(ctx, user.ID, taskID)
	if err != nil {
		b.ackCallback(cb, "")
		return b.sendText(cb.Message.Chat.ID, userMessage(err))
	}
	if !task.Completed {
		b.ackCallback(cb, "Already open")
		return nil
	}
	if task.CompletedAt != nil && b.now().Sub(*task.CompletedAt) > b.undoWindow {
		b.ackCallback(cb, "Too late to undo")
		return b.sendText(cb.Message.Chat.ID, fmt.Sprintf("The undo window has passed. Use /undo %d.", task.Position+1))
	}

	reopened, err := b.tasks.Uncomplete(ctx, user.ID, task.ID)
	if err != nil {
		b.ackCallback(cb, "")
		return b.sendText(cb.Message.Chat.ID, userMessage(err))
	}
	b.ackCallback(cb, "Reopened")
	return b.sendText(cb.Message.Chat.ID, fmt.Sprintf("↩️ Reopened: %s", escape(reopened.Content)))
}

// taskFromArgs resolves the one-based task number in the command arguments.
// When ok is false the user has already been answered and err is the send result.
func (b *Bot) taskFromArgs(ctx context.Context, msg *tgbotapi.Message, usage string) (*model.Task, *model.User, bool, error) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return nil, nil, false, b.sendText(msg.Chat.ID, "Which task? For example: "+usage)
	}
	position, err := parseNumber(args)
	if err != nil {
		return nil, nil, false, b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return nil, nil, false, err
	}
	task, err := b.tasks.AtPosition(ctx, user.ID, position)
	if err != nil {
		return nil, nil, false, b.sendText(msg.Chat.ID, userMessage(err))
	}
	return task, user, true, nil
}

func tagsFromNames(names []string) []model.Tag {
	tags := make([]model.Tag, 0, len(names))
	for _, name := range names {
		tags = append(tags, model.Tag{Name: name})
	}
	return tags
}
