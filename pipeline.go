package main

import (
	"log"

	"github.com/google/uuid"
)

// Pipeline processes extraction tasks strictly one at a time with a short
// pause between tasks so the host is never overwhelmed. Failures are counted
// and reported, never thrown; one bad row cannot abort the batch.
type Pipeline struct {
	ID        string
	Tasks     []*ExtractionTask
	Completed int
	Failed    int
	Index     int

	progress func(ProgressEvent)
}

// NewPipeline builds a pipeline over rows. The progress callback fires after
// every step; a nil callback is allowed.
func NewPipeline(rows []Row, progress func(ProgressEvent)) *Pipeline {
	tasks := make([]*ExtractionTask, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, NewTask(row))
	}
	return &Pipeline{ID: uuid.NewString(), Tasks: tasks, progress: progress}
}

// Run drives every task in order, batches unread restoration for the tasks
// that need it, and reports the final tally.
func (p *Pipeline) Run(engine *ExtractionEngine) (completed, failed int) {
	total := len(p.Tasks)
	log.Printf("Extracting %d messages...", total)

	for i, task := range p.Tasks {
		p.Index = i
		p.report(task, i, total)

		log.Printf("[%d/%d] Extracting: %s", i+1, total, taskLabel(task))
		engine.ExtractTask(task)

		if task.Outcome == OutcomeSucceeded {
			p.Completed++
			log.Printf("✓ Extracted: %s", taskLabel(task))
		} else {
			p.Failed++
			log.Printf("✗ Failed %s: %v", taskLabel(task), task.Err)
		}
		p.report(task, i+1, total)

		if i < total-1 {
			engine.sleep(engine.budgets.TaskPause())
		}
	}
	p.Index = total

	p.restoreUnread(engine)

	log.Printf("Extraction complete: %d succeeded, %d failed, %d total", p.Completed, p.Failed, total)
	return p.Completed, p.Failed
}

// restoreUnread runs the restoration cascade for every task whose row was
// unread before extraction began. Rows that were already read are never
// touched.
func (p *Pipeline) restoreUnread(engine *ExtractionEngine) {
	for _, task := range p.Tasks {
		if !task.WasUnread {
			continue
		}
		engine.RestoreUnread(task.Row)
	}
}

func (p *Pipeline) report(task *ExtractionTask, step, total int) {
	if p.progress == nil || total == 0 {
		return
	}
	p.progress(ProgressEvent{
		Label:   taskLabel(task),
		Index:   step,
		Total:   total,
		Percent: step * 100 / total,
		Done:    p.Completed,
		Failed:  p.Failed,
	})
}

func taskLabel(task *ExtractionTask) string {
	if task.Row.Subject != "" {
		return task.Row.Subject
	}
	if task.Row.Sender != "" {
		return task.Row.Sender
	}
	return task.ID
}
