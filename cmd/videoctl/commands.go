package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khoahotran/lecture-video/internal/application/usecase/courseware"
	"github.com/khoahotran/lecture-video/internal/application/usecase/maintenance"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Maintainer is the set of operator commands videoctl drives.
type Maintainer interface {
	Transcode(ctx context.Context, t maintenance.Target, dryRun bool) (*maintenance.Result, error)
	Retranscode(ctx context.Context, t maintenance.Target, dryRun bool) (*maintenance.Result, error)
	RemoveDuplicateEncodings(ctx context.Context, dryRun bool) ([]*video.File, error)
	SyncVideoKeys(ctx context.Context, in courseware.ResyncInput) (*courseware.ResyncReport, error)
	AddHLSToCourseware(ctx context.Context, fileIDs []int64, t maintenance.Target, concurrency int) (map[int64]map[string]int, error)
}

// Connector builds a Maintainer only once the command line has been validated.
type Connector func(ctx context.Context) (Maintainer, func(), error)

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

var errPartialFailure = errors.New("some items failed")

type command struct {
	name  string
	usage string
	// parse validates args and returns the action to run.
	parse func(fs *flag.FlagSet, args []string) (func(ctx context.Context, m Maintainer, out io.Writer) error, error)
}

var commands = []command{
	{"transcode", "queue first transcodes for the targeted videos", parseTranscode},
	{"retranscode", "flag the targeted videos for retranscoding", parseRetranscode},
	{"remove-duplicate-encodings", "keep only the newest file per video and encoding", parseRemoveDuplicates},
	{"sync-video-key-with-courseware", "adopt the video keys a courseware endpoint holds for a course", parseSyncKeys},
	{"add-hls-video-to-edx", "post HLS files to the courseware endpoints", parseAddHLS},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: videoctl <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-32s %s\n", c.name, c.usage)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, connect Connector) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "videoctl: unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}

	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	action, err := cmd.parse(fs, args[1:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "videoctl %s: %v\n", cmd.name, err)
			return exitUsage
		}
		return exitOK
	}

	m, closeFn, err := connect(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "videoctl: %v\n", err)
		return exitFailure
	}
	defer closeFn()

	if err := action(ctx, m, stdout); err != nil {
		fmt.Fprintf(stderr, "videoctl %s: %v\n", cmd.name, err)
		if errors.Is(err, apperror.ErrInvalidInput) {
			return exitUsage
		}
		return exitFailure
	}
	return exitOK
}

type uuidList []uuid.UUID

func (l *uuidList) String() string {
	parts := make([]string, len(*l))
	for i, id := range *l {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func (l *uuidList) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("invalid key %q", part)
		}
		*l = append(*l, id)
	}
	return nil
}

type int64List []int64

func (l *int64List) String() string {
	parts := make([]string, len(*l))
	for i, id := range *l {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func (l *int64List) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", part)
		}
		*l = append(*l, id)
	}
	return nil
}

type targetFlags struct {
	videos      uuidList
	collections uuidList
	courseID    string
	endpoint    string
	owner       string
	after       string
	before      string
	all         bool
}

func (f *targetFlags) register(fs *flag.FlagSet) {
	fs.Var(&f.videos, "video-key", "video key(s), comma separated or repeated")
	fs.Var(&f.collections, "collection-key", "collection key(s), comma separated or repeated")
	fs.StringVar(&f.courseID, "course-id", "", "courseware course id")
	fs.StringVar(&f.endpoint, "endpoint", "", "courseware endpoint name")
	fs.StringVar(&f.owner, "owner", "", "collection owner username")
	fs.StringVar(&f.after, "created-after", "", "only videos created on or after this date (YYYY-MM-DD)")
	fs.StringVar(&f.before, "created-before", "", "only videos created before this date (YYYY-MM-DD)")
	fs.BoolVar(&f.all, "all", false, "target every video")
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return &t, nil
}

// target converts the flags, requiring a filter when requireFilter is set.
func (f *targetFlags) target(requireFilter bool) (maintenance.Target, error) {
	t := maintenance.Target{
		VideoKeys:      f.videos,
		CollectionKeys: f.collections,
		CourseID:       f.courseID,
		EndpointName:   f.endpoint,
		Owner:          f.owner,
		All:            f.all,
	}
	var err error
	if t.CreatedAfter, err = parseDate(f.after); err != nil {
		return t, usageError{err.Error()}
	}
	if t.CreatedBefore, err = parseDate(f.before); err != nil {
		return t, usageError{err.Error()}
	}
	if t.CreatedAfter != nil && t.CreatedBefore != nil && !t.CreatedAfter.Before(*t.CreatedBefore) {
		return t, usageError{"--created-after must be earlier than --created-before"}
	}
	filtered := len(t.VideoKeys) > 0 || len(t.CollectionKeys) > 0 || t.CourseID != "" || t.EndpointName != "" ||
		t.Owner != "" || t.CreatedAfter != nil || t.CreatedBefore != nil
	if t.All && filtered {
		return t, usageError{"--all cannot be combined with filters"}
	}
	if requireFilter && !t.All && !filtered {
		return t, usageError{"no target given; pass a filter or --all"}
	}
	return t, nil
}

func parseArgs(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usageError{fmt.Sprintf("unexpected arguments: %s", strings.Join(fs.Args(), " "))}
	}
	return nil
}

func printResult(out io.Writer, verb string, res *maintenance.Result, dryRun bool) error {
	prefix := ""
	if dryRun {
		prefix = "[dry-run] "
	}
	for _, k := range res.Selected {
		if err, failed := res.Failed[k]; failed {
			fmt.Fprintf(out, "%sFAILED %s: %v\n", prefix, k, err)
			continue
		}
		fmt.Fprintf(out, "%s%s %s\n", prefix, verb, k)
	}
	fmt.Fprintf(out, "%s%d selected, %d skipped, %d failed\n", prefix, len(res.Selected), len(res.Skipped), len(res.Failed))
	if len(res.Failed) > 0 {
		return fmt.Errorf("%w: %w", errPartialFailure, res.Err())
	}
	return nil
}

type action = func(ctx context.Context, m Maintainer, out io.Writer) error

func parseTranscode(fs *flag.FlagSet, args []string) (action, error) {
	var tf targetFlags
	tf.register(fs)
	dryRun := fs.Bool("dry-run", false, "list the targets without queuing")
	if err := parseArgs(fs, args); err != nil {
		return nil, err
	}
	t, err := tf.target(true)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, m Maintainer, out io.Writer) error {
		res, err := m.Transcode(ctx, t, *dryRun)
		if err != nil {
			return err
		}
		return printResult(out, "queued", res, *dryRun)
	}, nil
}

func parseRetranscode(fs *flag.FlagSet, args []string) (action, error) {
	var tf targetFlags
	tf.register(fs)
	dryRun := fs.Bool("dry-run", false, "list the targets without flagging them")
	if err := parseArgs(fs, args); err != nil {
		return nil, err
	}
	t, err := tf.target(true)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, m Maintainer, out io.Writer) error {
		res, err := m.Retranscode(ctx, t, *dryRun)
		if err != nil {
			return err
		}
		return printResult(out, "flagged", res, *dryRun)
	}, nil
}

func parseRemoveDuplicates(fs *flag.FlagSet, args []string) (action, error) {
	dryRun := fs.Bool("dry-run", false, "list the duplicates without deleting them")
	if err := parseArgs(fs, args); err != nil {
		return nil, err
	}
	return func(ctx context.Context, m Maintainer, out io.Writer) error {
		removed, err := m.RemoveDuplicateEncodings(ctx, *dryRun)
		for _, f := range removed {
			fmt.Fprintf(out, "removed file %d (%s, %s) %s\n", f.ID, f.VideoKey, f.Encoding, f.ObjectKey)
		}
		fmt.Fprintf(out, "%d duplicate file(s)\n", len(removed))
		return err
	}, nil
}

func parseSyncKeys(fs *flag.FlagSet, args []string) (action, error) {
	courseID := fs.String("course-id", "", "courseware course id (required)")
	endpoint := fs.String("endpoint", "", "limit to one courseware endpoint")
	dryRun := fs.Bool("dry-run", false, "report the key changes without applying them")
	if err := parseArgs(fs, args); err != nil {
		return nil, err
	}
	if *courseID == "" {
		return nil, usageError{"--course-id is required"}
	}
	in := courseware.ResyncInput{CourseID: *courseID, EndpointName: *endpoint, DryRun: *dryRun}
	return func(ctx context.Context, m Maintainer, out io.Writer) error {
		rep, err := m.SyncVideoKeys(ctx, in)
		if err != nil {
			return err
		}
		for _, c := range rep.Changed {
			fmt.Fprintf(out, "%s: %s -> %s\n", c.Title, c.OldKey, c.NewKey)
		}
		names := make([]string, 0, len(rep.Failed))
		for name := range rep.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "FAILED %s: %v\n", name, rep.Failed[name])
		}
		fmt.Fprintf(out, "%d changed, %d skipped, %d failed\n", len(rep.Changed), rep.Skipped, len(rep.Failed))
		if len(rep.Failed) > 0 {
			return errPartialFailure
		}
		return nil
	}, nil
}

func parseAddHLS(fs *flag.FlagSet, args []string) (action, error) {
	var tf targetFlags
	tf.register(fs)
	var ids int64List
	fs.Var(&ids, "file-id", "HLS video file id(s), comma separated or repeated")
	concurrency := fs.Int("concurrency", 4, "parallel posts")
	if err := parseArgs(fs, args); err != nil {
		return nil, err
	}
	t, err := tf.target(len(ids) == 0)
	if err != nil {
		return nil, err
	}
	if *concurrency < 1 {
		return nil, usageError{"--concurrency must be positive"}
	}
	return func(ctx context.Context, m Maintainer, out io.Writer) error {
		results, err := m.AddHLSToCourseware(ctx, ids, t, *concurrency)
		if err != nil {
			return err
		}
		fileIDs := make([]int64, 0, len(results))
		for id := range results {
			fileIDs = append(fileIDs, id)
		}
		sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })
		failed := 0
		for _, id := range fileIDs {
			names := make([]string, 0, len(results[id]))
			for name := range results[id] {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				code := results[id][name]
				if code < 200 || code >= 300 {
					failed++
				}
				fmt.Fprintf(out, "file %d -> %s: %d\n", id, name, code)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d post(s) were rejected", errPartialFailure, failed)
		}
		return nil
	}, nil
}
