package commander

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"mlsvm/internal/experiment"
	"mlsvm/internal/jobs"
)

func (c *Commander) trainModelBackground(args []string) {
	ds, cfg, scaleType, ok := c.trainConfig(args)
	if !ok {
		return
	}

	desc := fmt.Sprintf("SVC kernel=%s cost=%g gamma=%g", cfg.Kernel, cfg.Cost, cfg.Gamma)
	job := c.jobManager.Start(context.Background(), "train", desc, func(ctx context.Context, job *jobs.Job) (any, error) {
		job.AddLog(fmt.Sprintf("Training on %d samples", ds.Len()))
		s, err := fit(ctx, ds, cfg, scaleType, log.New(job, "", 0))
		if err != nil {
			return nil, err
		}
		c.setSession(s, cfg)
		job.AddLog(fmt.Sprintf("Training completed. Accuracy: %.4f", s.metrics.Accuracy))
		return s.metrics, nil
	})
	c.printf("Job submitted: %s\n", c.cyan(job.ID))
}

// runExperiment sweeps the grid from a YAML file, or the default grid, over
// the loaded dataset and prints the best results.
func (c *Commander) runExperiment(args []string) {
	ds := c.currentDataset()
	if ds == nil {
		c.println(c.red("No data loaded. Use 'load <file>' first"))
		return
	}
	configFile := ""
	if len(args) > 0 {
		configFile = args[0]
	}
	runner, err := experiment.NewRunner(configFile)
	if err != nil {
		c.fail("%v", err)
		return
	}

	grid := runner.Config.Grid()
	c.printf("Running %d configurations...\n", len(grid)*len(runner.Config.Experiment.Preprocessing)*len(runner.Config.Experiment.TrainTestSplits))
	results, err := runner.RunDataset(context.Background(), ds)
	if err != nil {
		c.fail("Experiment failed: %v", err)
		return
	}

	c.println(strings.Repeat("-", 90))
	c.printf("%-10s %-14s %-8s %-9s %-9s %-5s %s\n", "Kernel", "Preprocessing", "Split", "Accuracy", "CV Mean", "SVs", "Parameters")
	c.println(strings.Repeat("-", 90))
	for _, r := range results {
		c.printf("%-10s %-14s %-8s %-9.4f %-9.4f %-5d %s\n",
			r.Kernel, r.Preprocessing, r.TrainTestSplit, r.Accuracy, r.CVMean, r.SupportVectors, r.Parameters)
	}
	if best, ok := experiment.Best(results); ok {
		c.printf("%s Best: %s with %s (%.4f)\n", c.green("✓"), best.Kernel, best.Preprocessing, best.Accuracy)
	}
}

func (c *Commander) listAllJobs() {
	all := c.jobManager.ListJobs()
	if len(all) == 0 {
		c.println("No jobs found")
		return
	}

	c.println(c.cyan("Background Jobs:"))
	c.println(strings.Repeat("-", 80))
	c.printf("%-12s %-8s %-10s %-9s %s\n", "Job ID", "Type", "Status", "Progress", "Description")
	c.println(strings.Repeat("-", 80))

	for _, job := range all {
		statusColor := c.yellow
		switch job.GetStatus() {
		case jobs.JobCompleted:
			statusColor = c.green
		case jobs.JobFailed:
			statusColor = c.red
		case jobs.JobRunning:
			statusColor = c.cyan
		}
		c.printf("%-12s %-8s %-10s %-9s %s\n",
			job.ID, job.Type, statusColor(string(job.GetStatus())), fmt.Sprintf("%.0f%%", job.GetProgress()*100), job.Description)
	}
}

func (c *Commander) showJobStatus(jobID string) {
	job, exists := c.jobManager.GetJob(jobID)
	if !exists {
		c.fail("Job not found: %s", jobID)
		return
	}

	c.printf("\n%s\n", c.cyan("Job Details:"))
	c.printf("ID:          %s\n", job.ID)
	c.printf("Type:        %s\n", job.Type)
	c.printf("Description: %s\n", job.Description)
	c.printf("Status:      %s\n", job.GetStatus())
	c.printf("Progress:    %.0f%%\n", job.GetProgress()*100)
	c.printf("Start Time:  %s\n", job.StartTime().Format("15:04:05"))
	c.printf("Duration:    %s\n", job.Duration().Round(time.Millisecond))
	if err := job.GetError(); err != nil {
		c.printf("Error:       %s\n", c.red(err.Error()))
	}
}

func (c *Commander) cancelJob(jobID string) {
	if err := c.jobManager.CancelJob(jobID); err != nil {
		c.fail("%v", err)
		return
	}
	c.printf("%s Job cancelled: %s\n", c.green("✓"), jobID)
}

func (c *Commander) showJobLogs(jobID string) {
	job, exists := c.jobManager.GetJob(jobID)
	if !exists {
		c.fail("Job not found: %s", jobID)
		return
	}

	logs := job.GetLogs()
	if len(logs) == 0 {
		c.println("No logs available")
		return
	}

	c.printf("\n%s\n", c.cyan(fmt.Sprintf("Logs for job %s:", jobID)))
	for _, line := range logs {
		c.println(line)
	}
}
