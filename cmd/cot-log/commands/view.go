// Package commands implements the cot-log subcommands.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/omnitak/cot-go/pkg/log"
)

// ParseLayer converts a layer flag value.
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "cot":
		return log.LayerCot, nil
	case "dispatch":
		return log.LayerDispatch, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, cot, or dispatch)", s)
	}
}

// ParseDirection converts a direction flag value.
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory converts a category flag value.
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunView prints matching trace events in human-readable form.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}

	return nil
}

// formatEvent writes one trace event as a single line plus optional
// payload details.
func formatEvent(w io.Writer, event log.Event) {
	fmt.Fprintf(w, "%s [%s] %-3s %-9s %s",
		event.Timestamp.Format("15:04:05.000"),
		shortenConnID(event.ConnectionID),
		event.Direction,
		event.Layer,
		event.Category)

	if event.UID != "" {
		fmt.Fprintf(w, " uid=%s", event.UID)
	}
	if event.EventType != "" {
		fmt.Fprintf(w, " type=%s", event.EventType)
	}
	fmt.Fprintln(w)

	switch {
	case event.Frame != nil:
		formatFrame(w, event.Frame)
	case event.Message != nil:
		formatMessage(w, event.Message)
	case event.StateChange != nil:
		formatStateChange(w, event.StateChange)
	case event.Error != nil:
		formatError(w, event.Error)
	}
}

// shortenConnID returns the first 8 chars of a connection UUID.
func shortenConnID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatFrame(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "    %d bytes", frame.Size)
	if frame.Truncated {
		fmt.Fprint(w, " (truncated)")
	}
	fmt.Fprintln(w)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "    %s\n", strings.TrimSpace(string(frame.Data)))
	}
}

func formatMessage(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "    %s (%s)", msg.UID, msg.Type)
	if msg.Callsign != "" {
		fmt.Fprintf(w, " callsign=%s", msg.Callsign)
	}
	if msg.Lat != 0 || msg.Lon != 0 {
		fmt.Fprintf(w, " at %.6f, %.6f", msg.Lat, msg.Lon)
	}
	fmt.Fprintln(w)
}

func formatStateChange(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "    %s -> %s", sc.OldState, sc.NewState)
	if sc.Reason != "" {
		fmt.Fprintf(w, " (%s)", sc.Reason)
	}
	fmt.Fprintln(w)
}

func formatError(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "    %s: %s\n", e.Code, e.Message)
}
