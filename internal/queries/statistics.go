package queries

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lewisedginton/ctfd_announcer/internal/ctfd"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

const displayTimeLayout = "2006-01-02 15:04 UTC"

// isoLayouts are tried in order for non-numeric start/end values.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// snapshot is everything the stats message is built from.
type snapshot struct {
	config      ctfd.PlatformConfig
	teams       []ctfd.Account
	users       []ctfd.Account
	challenges  []ctfd.Challenge
	stats       ctfd.Statistics
	correctSubs []ctfd.Submission
}

// Statistics renders the CTF overview. Sub-fetches run concurrently and
// each degrades to empty on its own.
func (h *Handler) Statistics(ctx context.Context) (msg string) {
	log := logger.GetLoggerFromContext(ctx, h.logger)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Building statistics panicked", logger.StringField("panic", fmt.Sprint(r)))
			msg = MsgStatisticsError
		}
	}()

	snap, err := h.collect(ctx)
	if err != nil {
		log.Error("Collecting statistics failed", logger.ErrorField(err))
		return MsgStatisticsError
	}
	return h.render(snap)
}

func (h *Handler) collect(ctx context.Context) (*snapshot, error) {
	log := logger.GetLoggerFromContext(ctx, h.logger)
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(guard(func() {
		snap.config = h.client.FetchConfig(gctx)
	}))
	g.Go(guard(func() {
		snap.teams = h.client.FetchAllTeams(gctx)
	}))
	g.Go(guard(func() {
		snap.users = h.client.FetchAllUsers(gctx)
	}))
	g.Go(guard(func() {
		challenges, err := h.client.FetchChallenges(gctx)
		if err != nil {
			log.Warn("Fetching challenges for statistics failed, counting zero", logger.ErrorField(err))
			challenges = nil
		}
		snap.challenges = challenges
	}))
	g.Go(guard(func() {
		snap.stats = h.client.FetchComprehensiveStatistics(gctx)
	}))
	g.Go(guard(func() {
		snap.correctSubs = h.client.FetchSubmissionsByType(gctx, "correct")
	}))

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (h *Handler) render(snap *snapshot) string {
	lines := []string{
		fmt.Sprintf("🏆 **%s**", ctfName(snap.config)),
		"",
		fmt.Sprintf("👥 **Teams:** %d", len(snap.teams)),
		fmt.Sprintf("👤 **Players:** %d", len(snap.users)),
		fmt.Sprintf("🎯 **Challenges:** %d", len(snap.challenges)),
		fmt.Sprintf("✅ **Correct Solves:** %d", len(snap.correctSubs)),
	}

	if total, ok := snap.stats.TotalSolves(); ok {
		lines = append(lines, fmt.Sprintf("📊 **Total Solves (from stats):** %d", total))
	}
	if !isEmptyValue(snap.stats.Challenges) {
		lines = append(lines, "📈 **Challenge percentage data available**")
	}
	if !isEmptyValue(snap.stats.Teams) {
		lines = append(lines, "👥 **Team statistics available**")
	}
	if !isEmptyValue(snap.stats.Submissions) {
		lines = append(lines, "📝 **Submission statistics available**")
	}

	if len(snap.challenges) > 0 && len(snap.teams) > 0 {
		rate := SolveRate(len(snap.correctSubs), len(snap.challenges), len(snap.teams))
		lines = append(lines, fmt.Sprintf("📈 **Solve Rate:** %.1f%%", rate))
	}

	lines = append(lines, "")

	start, startOK, startShown := ctfTime(snap.config["start"])
	end, endOK, endShown := ctfTime(snap.config["end"])
	if startShown != "" {
		lines = append(lines, "🚀 **Start:** "+startShown)
	}
	if endShown != "" {
		lines = append(lines, "🏁 **End:** "+endShown)
	}
	if startOK && endOK {
		lines = append(lines, statusLine(h.now().UTC(), start, end))
	}

	return strings.Join(lines, "\n")
}

// guard turns a panic in a fan-out goroutine into an error.
func guard(fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("statistics fetch panicked: %v", r)
			}
		}()
		fn()
		return nil
	}
}

// SolveRate is correct solves as a percentage of challenges × teams. It is
// zero when either count is zero.
func SolveRate(correctSolves, challenges, teams int) float64 {
	possible := challenges * teams
	if possible <= 0 {
		return 0
	}
	return float64(correctSolves) / float64(possible) * 100
}

func ctfName(cfg ctfd.PlatformConfig) string {
	if name := cfg.String("ctf_name"); name != "" {
		return name
	}
	if name := cfg.String("name"); name != "" {
		return name
	}
	return "CTF"
}

func statusLine(now, start, end time.Time) string {
	switch {
	case now.Before(start):
		return "⏳ **Status:** Not Started"
	case now.After(end):
		return "🔚 **Status:** Finished"
	default:
		return "🔥 **Status:** Running"
	}
}

// ctfTime interprets a start/end config value. It returns the parsed time,
// whether parsing succeeded, and the text to display ("" when the value is
// absent). Unparseable values are displayed verbatim.
func ctfTime(v any) (time.Time, bool, string) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false, ""
	case float64:
		if t == 0 {
			return time.Time{}, false, ""
		}
		ts := fromEpoch(t)
		return ts, true, ts.Format(displayTimeLayout)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false, ""
		}
		if ts, ok := ParseCTFTime(s); ok {
			return ts, true, ts.Format(displayTimeLayout)
		}
		return time.Time{}, false, t
	default:
		return time.Time{}, false, fmt.Sprint(t)
	}
}

// ParseCTFTime parses an epoch (integer or fractional seconds) or an
// ISO-8601 timestamp. Timestamps without a zone are taken as UTC.
func ParseCTFTime(s string) (time.Time, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return fromEpoch(f), true
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromEpoch(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
