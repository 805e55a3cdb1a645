// stocktag describes and keywords a photo tree for stock sites using a batch vision model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"

	"github.com/AstFreelancer/shutterstock/pkg/stocktag"
)

var stepFlag = flag.String("step", "", "pipeline step to run: "+stepNames())

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if *stepFlag == "" {
		klog.Exitf("--step is a required flag. Usage: %s --step <%s>", os.Args[0], stepNames())
	}

	s, err := parseStep(*stepFlag)
	if err != nil {
		klog.Exitf("%v", err)
	}

	// .env is optional
	_ = godotenv.Load()

	c, err := stocktag.LoadConfig()
	if err != nil {
		klog.Exitf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, c, s); err != nil {
		klog.Exitf("%s failed: %v", s, err)
	}
}

func run(ctx context.Context, c *stocktag.Config, s step) error {
	switch s {
	case generateTasks:
		n, err := stocktag.GenerateTasks(c)
		if err != nil {
			return err
		}
		klog.Infof("wrote %d tasks to %s", n, c.TasksPath)
		return nil

	case sendBatch:
		svc, err := newService(ctx, c)
		if err != nil {
			return err
		}
		_, err = stocktag.SendBatch(ctx, c, svc)
		return err

	case tryGetResults:
		svc, err := newService(ctx, c)
		if err != nil {
			return err
		}
		j, err := stocktag.PollBatch(ctx, c, svc)
		if errors.Is(err, stocktag.ErrBatchFailed) {
			klog.Errorf("batch %s ended as %s; regenerate tasks if needed and run send-batch again", j.ID, j.Status)
		}
		if err != nil {
			return err
		}
		if !j.Status.Terminal() {
			klog.Infof("batch %s is not done yet; run try-get-results again later", j.ID)
		}
		return nil

	case processOutput:
		if err := c.CheckCorpus(); err != nil {
			return err
		}
		tasks := stocktag.TasksFor(c)
		rs, err := stocktag.Reconcile(c, tasks, c.ResultsPath)
		if err != nil {
			return err
		}

		t, err := stocktag.NewExiftool(c.ExiftoolPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := t.Close(); err != nil {
				klog.Errorf("Failed to close exiftool: %v", err)
			}
		}()

		_, err = stocktag.ProcessOutput(c, rs, t)
		return err
	}
	return fmt.Errorf("unhandled step %s", s)
}

func newService(ctx context.Context, c *stocktag.Config) (stocktag.Service, error) {
	switch c.Provider {
	case stocktag.ProviderOpenAI:
		return stocktag.NewOpenAI(), nil
	case stocktag.ProviderGemini:
		return stocktag.NewGemini(ctx, c)
	}
	return nil, fmt.Errorf("unknown provider %q", c.Provider)
}
