package loghandler

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"testing"
)

var stamp = regexp.MustCompile(`^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} `)

func TestCompactFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, slog.LevelInfo))

	log.Info("room created", "tag", "game", "room", "ABC123", "mode", 3)

	line := buf.String()
	if !stamp.MatchString(line) {
		t.Fatalf("missing timestamp: %q", line)
	}
	want := "[game] room created room=ABC123 mode=3\n"
	if got := stamp.ReplaceAllString(line, ""); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCompactLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, slog.LevelInfo))

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered, got %q", buf.String())
	}
	log.Warn("store write failed", "tag", "storage")
	if got := stamp.ReplaceAllString(buf.String(), ""); got != "[storage] WARN store write failed\n" {
		t.Errorf("got %q", got)
	}
}

func TestCompactWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, slog.LevelDebug)).With("tag", "ws", "conn", "c1")

	log.WithGroup("req").Info("joined", "room", "ABC123")

	got := stamp.ReplaceAllString(buf.String(), "")
	if got != "[ws] joined conn=c1 req.room=ABC123\n" {
		t.Errorf("got %q", got)
	}
	if strings.Count(got, "tag=") != 0 {
		t.Error("tag should not be repeated as an attribute")
	}
}
