package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownTask is returned for a task name that is neither an operation
// nor a registered environment.
var ErrUnknownTask = errors.New("unknown task")

// Tasks returns every operation name accepted by RunTasks, sorted.
// Registered environment names are accepted as well.
func (o *Operations) Tasks() []string {
	names := []string{OpDeploy, OpClearCache}
	for name := range o.catalog() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Operations) isTask(name string) bool {
	if name == OpDeploy || name == OpClearCache {
		return true
	}
	_, ok := o.catalog()[name]
	return ok
}

// RunTasks runs tasks left to right. An environment name selects that
// environment; anything else is an operation. All names are checked
// before the first task runs, and the first failure stops the run.
func (o *Operations) RunTasks(ctx context.Context, tasks []string) error {
	for _, task := range tasks {
		if !o.selector.Has(task) && !o.isTask(task) {
			return fmt.Errorf("%w: %q (tasks: %v, environments: %v)",
				ErrUnknownTask, task, o.Tasks(), o.selector.Names())
		}
	}

	for _, task := range tasks {
		if o.selector.Has(task) {
			if err := o.selector.Select(task); err != nil {
				return err
			}
			continue
		}
		if err := o.Invoke(ctx, task); err != nil {
			return err
		}
	}
	return nil
}
