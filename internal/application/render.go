package application

import (
	"fmt"
	"strings"

	"github.com/ericfisherdev/diarymirror/internal/domain/model"
)

// Logical image names understood by the chat transport.
const (
	ImageCalendar = "calendar"
	ImageLessons  = "lessons"
	ImageLesson   = "lesson"
)

const timePlaceholder = "--:--"

func textReply(text string) model.RenderRequest {
	return model.RenderRequest{Kind: model.RenderText, Text: text}
}

func deleteMessage(messageID int64) []model.RenderRequest {
	if messageID == 0 {
		return nil
	}
	return []model.RenderRequest{{Kind: model.RenderDelete, MessageID: messageID}}
}

func button(label string, p Payload) model.Button {
	return model.Button{Label: label, Payload: EncodePayload(p)}
}

func formatDate(d model.Date) string {
	return fmt.Sprintf("%02d.%02d.%04d", d.Day, int(d.Month), d.Year)
}

func renderView(v View) model.RenderRequest {
	switch v.Kind {
	case ViewCalendar:
		return renderCalendar(v.Window, v.Offset)
	case ViewLessonDetail:
		return renderLessonDetail(v.Lesson)
	default:
		if v.Empty {
			return renderNoLessons(v.Date)
		}
		return renderLessonList(v.Date, v.Lessons)
	}
}

// renderCalendar lays out one page: a row of weekday labels, a row of day
// buttons and a navigation row.
func renderCalendar(w Window, offset int) model.RenderRequest {
	offset = ClampOffset(offset)
	days := w.VisibleDays(offset)

	header := make([]model.Button, 0, len(days))
	dates := make([]model.Button, 0, len(days))
	for i, d := range days {
		header = append(header, button(d.Weekday().String()[:3], Noop{}))
		dates = append(dates, button(fmt.Sprintf("%d %s", d.Day, d.Month.String()[:3]), PickDay{Index: offset + i}))
	}

	nav := make([]model.Button, 0, 2)
	if HasPrev(offset) {
		nav = append(nav, button("« Back", PagePrev{Offset: offset}))
	} else {
		nav = append(nav, button(" ", Noop{}))
	}
	if HasNext(offset) {
		nav = append(nav, button("Next »", PageNext{Offset: offset}))
	} else {
		nav = append(nav, button(" ", Noop{}))
	}

	return model.RenderRequest{
		Kind:    model.RenderImage,
		Image:   ImageCalendar,
		Text:    "Choose a date",
		Buttons: [][]model.Button{header, dates, nav},
	}
}

func lessonLabel(l model.Lesson) string {
	start, end := timePlaceholder, timePlaceholder
	if l.Start != nil {
		start = l.Start.String()
	}
	if l.End != nil {
		end = l.End.String()
	}
	subject := l.Subject
	if subject == "" {
		subject = "---"
	}
	return fmt.Sprintf("%s-%s %s", start, end, subject)
}

func renderLessonList(date model.Date, lessons []model.Lesson) model.RenderRequest {
	rows := make([][]model.Button, 0, len(lessons)+1)
	for i, l := range lessons {
		rows = append(rows, []model.Button{button(lessonLabel(l), PickLesson{Index: i})})
	}
	rows = append(rows, []model.Button{button("Back to schedule", Back{To: BackToSchedule})})

	return model.RenderRequest{
		Kind:    model.RenderImage,
		Image:   ImageLessons,
		Text:    fmt.Sprintf("Choose a lesson on %s:", formatDate(date)),
		Buttons: rows,
	}
}

func renderNoLessons(date model.Date) model.RenderRequest {
	return model.RenderRequest{
		Kind: model.RenderText,
		Text: fmt.Sprintf("No schedule for %s: neither the diary nor the local copy has lessons for this day.", formatDate(date)),
		Buttons: [][]model.Button{
			{button("Back to schedule", Back{To: BackToSchedule})},
		},
	}
}

func renderLessonDetail(l model.Lesson) model.RenderRequest {
	orElse := func(s, fallback string) string {
		if s == "" {
			return fallback
		}
		return s
	}

	start, end := "not specified", "not specified"
	if l.Start != nil {
		start = l.Start.String()
	}
	if l.End != nil {
		end = l.End.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s-%s\n", start, end)
	fmt.Fprintf(&b, "Subject: %s\n", orElse(l.Subject, "not specified"))
	fmt.Fprintf(&b, "Room: %s\n", orElse(l.Room, "not specified"))
	fmt.Fprintf(&b, "Topic: %s\n", orElse(l.Topic, "not specified"))
	if hw := strings.TrimSpace(l.Homework); hw != "" {
		fmt.Fprintf(&b, "Homework:\n%s\n", hw)
	} else {
		b.WriteString("Homework: none\n")
	}
	if l.HasMaterials {
		b.WriteString("The teacher attached digital homework.\n")
	}

	return model.RenderRequest{
		Kind:  model.RenderImage,
		Image: ImageLesson,
		Text:  strings.TrimRight(b.String(), "\n"),
		Buttons: [][]model.Button{
			{button("Back to lessons", Back{To: BackToLessons})},
			{button("Back to schedule", Back{To: BackToSchedule})},
		},
	}
}
