package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/annel0/knapping/internal/eventbus"
	nats "github.com/nats-io/nats.go"
)

const (
	defaultServerAddr = "nats://127.0.0.1:4222"
	timeFormat        = "2006-01-02T15:04:05Z"
	idleWait          = 2 * time.Second
)

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "NATS server address")
		stream     = flag.String("stream", "KNAPPING", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		surfaces   = flag.String("surfaces", "", "Surface IDs filter (comma-separated)")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m)")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
	)
	flag.Parse()

	nc, err := nats.Connect(*serverAddr, nats.Name("knap-event-cli"))
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("❌ JetStream unavailable: %v", err)
	}

	switch *command {
	case "tail":
		if err := tailEvents(js, &TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Surfaces:   parseStringList(*surfaces),
			Since:      *since,
			Limit:      *limit,
			Follow:     *follow,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		if err := showStats(js, &StatsOptions{
			EventTypes: parseStringList(*eventTypes),
			Since:      *since,
		}); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	case "types":
		if err := showTypes(js, *stream); err != nil {
			log.Fatalf("❌ Types failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
}

type TailOptions struct {
	EventTypes []string
	Surfaces   []string
	Since      string
	Limit      int
	Follow     bool
}

type StatsOptions struct {
	EventTypes []string
	Since      string
}

// subscribe открывает ordered consumer с заданного момента
func subscribe(js nats.JetStreamContext, types []string, since string) (*nats.Subscription, error) {
	startTime, err := parseSinceTime(since, time.Now())
	if err != nil {
		return nil, fmt.Errorf("invalid since time: %v", err)
	}

	subject := eventbus.Subject("")
	if len(types) == 1 {
		subject = eventbus.Subject(types[0])
	}
	return js.SubscribeSync(subject, nats.OrderedConsumer(), nats.StartTime(startTime))
}

// nextEvent читает следующее событие, nil без ошибки означает простой
func nextEvent(sub *nats.Subscription) (*eventbus.Envelope, error) {
	msg, err := sub.NextMsg(idleWait)
	if errors.Is(err, nats.ErrTimeout) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ev eventbus.Envelope
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return nil, fmt.Errorf("bad event payload: %v", err)
	}
	return &ev, nil
}

// tailEvents выводит события из стрима
func tailEvents(js nats.JetStreamContext, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing events (limit: %d, follow: %v)\n", opts.Limit, opts.Follow)

	sub, err := subscribe(js, opts.EventTypes, opts.Since)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	eventCount := 0
	for opts.Follow || eventCount < opts.Limit {
		ev, err := nextEvent(sub)
		if err != nil {
			return err
		}
		if ev == nil {
			if !opts.Follow {
				break
			}
			continue
		}
		if !contains(opts.EventTypes, ev.EventType) || !contains(opts.Surfaces, ev.CorrelationID) {
			continue
		}

		printEvent(ev)
		eventCount++
	}

	fmt.Printf("\n📊 Total events: %d\n", eventCount)
	return nil
}

// showStats считает события по типам
func showStats(js nats.JetStreamContext, opts *StatsOptions) error {
	fmt.Println("📊 Event statistics")

	sub, err := subscribe(js, opts.EventTypes, opts.Since)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	counts := make(map[string]int)
	total := 0
	var destroyed, completed int
	var qualitySum float64
	for {
		ev, err := nextEvent(sub)
		if err != nil {
			return err
		}
		if ev == nil {
			break
		}
		if !contains(opts.EventTypes, ev.EventType) {
			continue
		}
		counts[ev.EventType]++
		total++

		switch ev.EventType {
		case eventbus.TypeKnappingCompleted:
			var p eventbus.KnappingCompletedEvent
			if ev.Decode(&p) == nil {
				completed++
				qualitySum += p.QualityMultiplier
			}
		case eventbus.TypeKnappingDestroyed:
			destroyed++
		}
	}

	fmt.Printf("Since: %s\n", opts.Since)
	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %s: %d events\n", t, counts[t])
	}
	if completed > 0 {
		fmt.Printf("\nAverage quality: x%.3f over %d pieces\n", qualitySum/float64(completed), completed)
	}
	if destroyed > 0 {
		fmt.Printf("Destroyed pieces: %d\n", destroyed)
	}
	return nil
}

// showTypes выводит типы событий и число сообщений в стриме
func showTypes(js nats.JetStreamContext, stream string) error {
	fmt.Println("📋 Available event types")

	info, err := js.StreamInfo(stream, &nats.StreamInfoRequest{SubjectsFilter: eventbus.Subject("")})
	if err != nil {
		return fmt.Errorf("failed to get stream info: %v", err)
	}

	for _, eventType := range eventbus.KnownTypes() {
		fmt.Printf("Type: %s\n", eventType)
		fmt.Printf("  Subject: %s\n", eventbus.Subject(eventType))
		fmt.Printf("  Count: %d\n", info.State.Subjects[eventbus.Subject(eventType)])
	}
	fmt.Printf("\nStream %s: %d messages, first %s, last %s\n",
		stream, info.State.Msgs,
		info.State.FirstTime.UTC().Format(timeFormat),
		info.State.LastTime.UTC().Format(timeFormat))
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	timestamp := ev.Timestamp.Format("15:04:05")
	fmt.Printf("[%s] %s [%s] %s\n", timestamp, ev.Source, ev.EventType, ev.ID)

	switch ev.EventType {
	case eventbus.TypeStrikeResolved:
		var p eventbus.StrikeResolvedEvent
		if ev.Decode(&p) == nil {
			fmt.Printf("  Surface: %s Strike: (%d,%d) %s removed=%d debris=%d mistakes=%d/%d\n",
				p.SurfaceID, p.X, p.Z, p.Kind, len(p.Removed), p.Debris, p.Mistakes, p.TotalMistakes)
		}
	case eventbus.TypeKnappingCompleted:
		var p eventbus.KnappingCompletedEvent
		if ev.Decode(&p) == nil {
			fmt.Printf("  Surface: %s Pattern: %s Quality: x%.3f Mistakes: %d\n",
				p.SurfaceID, p.Pattern, p.QualityMultiplier, p.TotalMistakes)
		}
	case eventbus.TypeKnappingDestroyed:
		var p eventbus.KnappingDestroyedEvent
		if ev.Decode(&p) == nil {
			fmt.Printf("  Surface: %s Pattern: %s Mistakes: %d\n",
				p.SurfaceID, p.Pattern, p.TotalMistakes)
		}
	}
}

func contains(filter []string, v string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == v {
			return true
		}
	}
	return false
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m"
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
