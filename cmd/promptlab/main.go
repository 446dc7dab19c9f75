package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/config"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/diff"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/docs"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/eventbus"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/submission"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/task"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/storage"
)

var (
	app = kingpin.New("promptlab", "Operations tool for the prompt evaluation workflow")

	statusCmd = app.Command("status", "Show the stored status of a task")
	statusID  = statusCmd.Arg("id", "Task ID").Required().String()

	fragmentCmd   = app.Command("fragment", "Print a stored fragment as JSON")
	fragmentID    = fragmentCmd.Arg("id", "Task ID").Required().String()
	fragmentClass = fragmentCmd.Flag("class", "Key class (authoring, review, submission, backup)").Default("review").String()

	queueCmd      = app.Command("queue", "Queued submission commands")
	queueListCmd  = queueCmd.Command("list", "List queued submissions")
	queueFlushCmd = queueCmd.Command("flush", "Deliver queued submissions to the collector")

	diffCmd    = app.Command("diff", "Compare two text files")
	diffBefore = diffCmd.Arg("before", "Before file").Required().String()
	diffAfter  = diffCmd.Arg("after", "After file").Required().String()
	diffMode   = diffCmd.Flag("mode", "Granularity (word, line, char, inline)").Default("word").String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	ctx := context.Background()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = handleStatus(ctx, *statusID)
	case fragmentCmd.FullCommand():
		err = handleFragment(ctx, *fragmentID, *fragmentClass)
	case queueListCmd.FullCommand():
		err = handleQueueList(ctx)
	case queueFlushCmd.FullCommand():
		err = handleQueueFlush(ctx)
	case diffCmd.FullCommand():
		err = handleDiff(*diffMode, *diffBefore, *diffAfter)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStorage() (storage.Storage, *config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, nil, err
	}
	if env.StorageEnv.Type == "s3" {
		store, err := storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		return store, env, err
	}
	store, err := storage.NewLocalStorage(env.StorageEnv.BaseDir)
	return store, env, err
}

func handleStatus(ctx context.Context, taskID string) error {
	store, _, err := openStorage()
	if err != nil {
		return err
	}
	status, err := task.NewStore(store).GetStatus(ctx, taskID)
	if err != nil {
		return err
	}
	printer := color.New(color.FgYellow)
	switch status {
	case task.StatusSubmitted:
		printer = color.New(color.FgGreen)
	case task.StatusNotStarted:
		printer = color.New(color.FgWhite)
	}
	printer.Printf("%s\t%s\n", taskID, status)
	return nil
}

func handleFragment(ctx context.Context, taskID, class string) error {
	store, _, err := openStorage()
	if err != nil {
		return err
	}
	f, err := workflow.NewStateStore(store).GetFragment(ctx, workflow.KeyClass(class), taskID)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("no %s fragment stored for task %s", class, taskID)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func handleQueueList(ctx context.Context) error {
	store, _, err := openStorage()
	if err != nil {
		return err
	}
	state := workflow.NewStateStore(store)
	keys, err := state.ListKeys(ctx, workflow.QueuePrefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	for _, key := range keys {
		color.Cyan("%s", key)
	}
	return nil
}

func handleQueueFlush(ctx context.Context) error {
	store, env, err := openStorage()
	if err != nil {
		return err
	}
	catalog, err := docs.LoadCatalog(env.DocsEnv.CatalogPath)
	if err != nil {
		return err
	}
	state := workflow.NewStateStore(store)
	tasks := task.NewStore(store)
	collector := submission.NewCollector(env.CollectorEnv.EndpointURL, env.CollectorEnv.APIKey)
	pipeline := submission.NewPipeline(state, tasks, catalog, collector, eventbus.New())

	delivered, err := pipeline.FlushQueued(ctx)
	if err != nil {
		return err
	}
	color.Green("delivered %d queued submission(s)", delivered)
	return nil
}

func handleDiff(mode, beforePath, afterPath string) error {
	before, err := os.ReadFile(beforePath)
	if err != nil {
		return err
	}
	after, err := os.ReadFile(afterPath)
	if err != nil {
		return err
	}
	m, err := diff.ParseMode(mode)
	if err != nil {
		return err
	}
	result := diff.Compare(m, string(before), string(after))
	if result.Identical {
		color.Green("files are identical")
		return nil
	}
	for _, seg := range result.Segments {
		switch seg.Op {
		case diff.OpRemoved:
			color.New(color.FgRed, color.CrossedOut).Print(seg.Text)
		case diff.OpAdded:
			color.New(color.FgGreen).Print(seg.Text)
		default:
			fmt.Print(seg.Text)
		}
	}
	fmt.Println()
	return nil
}
