// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the tracker over stdio. Writes go through the local store, so
// they replicate like any other write.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/tracker"
)

const dashboardURI = "tally://dashboard/week"

// Server wraps the MCP server with tracker tools.
type Server struct {
	mcp *server.MCPServer
	svc *tracker.Service
}

// New creates a new MCP server with all tracker tools registered.
func New(svc *tracker.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"tally",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_habits",
		mcp.WithDescription("List habits with their current and best streaks."),
	), s.listHabits)

	s.mcp.AddTool(mcp.NewTool("add_habit",
		mcp.WithDescription("Create a habit to track daily."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Habit name")),
		mcp.WithString("icon", mcp.Description("Optional emoji icon")),
		mcp.WithString("color", mcp.Description("Optional CSS color, e.g. #e6002a")),
	), s.addHabit)

	s.mcp.AddTool(mcp.NewTool("toggle_habit",
		mcp.WithDescription("Cycle a habit's status on a day: unmarked, win, fail, unmarked."),
		mcp.WithString("habit_id", mcp.Required(), mcp.Description("Habit ID from list_habits")),
		mcp.WithString("date", mcp.Description("Day as YYYY-MM-DD; defaults to today")),
	), s.toggleHabit)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently changed first."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Create a note, or edit one when id is given. Title or content is required."),
		mcp.WithString("id", mcp.Description("ID of the note to edit")),
		mcp.WithString("title", mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note body")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("finance_summary",
		mcp.WithDescription("Current balance and the most recent ledger entries."),
		mcp.WithNumber("limit", mcp.Description("Entries to include (default 10)")),
	), s.financeSummary)

	s.mcp.AddTool(mcp.NewTool("add_finance_entry",
		mcp.WithDescription("Record income (in) or an expense (out)."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum("in", "out"), mcp.Description("in or out")),
		mcp.WithString("amount", mcp.Required(), mcp.Description("Positive amount, e.g. 12.50")),
		mcp.WithString("desc", mcp.Description("Optional description")),
	), s.addFinanceEntry)

	s.mcp.AddTool(mcp.NewTool("dashboard",
		mcp.WithDescription("Win/fail totals, success rate, best streak and per-habit grades."),
		mcp.WithString("period", mcp.Enum("week", "month", "all"), mcp.Description("Window (default week)")),
	), s.dashboard)

	s.mcp.AddResource(
		mcp.NewResource(dashboardURI, "Weekly dashboard",
			mcp.WithResourceDescription("Habit statistics for the last seven days."),
			mcp.WithMIMEType("application/json"),
		),
		s.readDashboardResource,
	)

	return s
}

// ServeStdio serves MCP on stdin/stdout until ctx ends or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

type habitRow struct {
	models.Habit
	Streak     int `json:"streak"`
	BestStreak int `json:"best_streak"`
}

func (s *Server) listHabits(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	today := s.svc.Today()
	habits := s.svc.Habits(ctx)
	rows := make([]habitRow, len(habits))
	for i, h := range habits {
		rows[i] = habitRow{Habit: h, Streak: s.svc.Streak(ctx, h.ID, today), BestStreak: s.svc.BestStreak(ctx, h.ID)}
	}
	return jsonResult(rows)
}

func (s *Server) addHabit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := s.svc.AddHabit(ctx, tracker.HabitInput{
		Name:  name,
		Icon:  req.GetString("icon", ""),
		Color: req.GetString("color", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(h)
}

func (s *Server) toggleHabit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("habit_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	day := s.svc.Today()
	if raw := req.GetString("date", ""); raw != "" {
		d, err := time.ParseInLocation(models.DayLayout, raw, time.Local)
		if err != nil {
			return mcp.NewToolResultError("date must be YYYY-MM-DD"), nil
		}
		day = d
	}
	st, err := s.svc.ToggleStatus(ctx, id, day)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("toggle %s: %v", id, err)), nil
	}
	if st == "" {
		st = "unmarked"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s on %s: %s", id, day.Format(models.DayLayout), st)), nil
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Notes(ctx))
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.SaveNote(ctx, tracker.NoteInput{
		ID:      req.GetString("id", ""),
		Title:   req.GetString("title", ""),
		Content: req.GetString("content", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n)
}

type financeSummary struct {
	Balance string         `json:"balance"`
	Entries []models.Entry `json:"entries"`
}

func (s *Server) financeSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	f := s.svc.Finance(ctx)
	if limit > 0 && len(f.Log) > limit {
		f.Log = f.Log[:limit]
	}
	return jsonResult(financeSummary{Balance: tracker.FormatMoney(f.Balance), Entries: f.Log})
}

func (s *Server) addFinanceEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawAmount, err := req.RequireString("amount")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid amount %q", rawAmount)), nil
	}
	e, err := s.svc.AddEntry(ctx, tracker.EntryInput{
		Kind:   tracker.EntryKind(kind),
		Amount: amount,
		Desc:   req.GetString("desc", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("recorded %s (%s); balance %s",
		e.Desc, tracker.FormatMoney(e.Amount), tracker.FormatMoney(s.svc.Finance(ctx).Balance))), nil
}

func (s *Server) dashboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := tracker.ParsePeriod(req.GetString("period", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.Dashboard(ctx, p, s.svc.Today()))
}

func (s *Server) readDashboardResource(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(s.svc.Dashboard(ctx, tracker.PeriodWeek, s.svc.Today()), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      dashboardURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
