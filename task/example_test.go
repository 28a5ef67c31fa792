package task_test

import (
	"fmt"
	"time"

	"github.com/gogazub/taskloop/task"
)

func ExampleTask_twoPhase() {
	var out string
	tsk := task.New(func(*task.Task) task.PostBody {
		out += "pre"
		return func() { out += " post" }
	}, nil, task.WithOnExecute(func(fn func()) { fn() }))

	tsk.Execute()
	time.Sleep(10 * time.Millisecond)

	fmt.Println(out)
	// Output:
	// pre post
}

func ExampleTaskStack_cancelPrevious() {
	s := task.NewTaskStack(task.WithStackOnExecute(func(fn func()) { fn() }))
	block := make(chan struct{})

	t1, _ := s.Next(func(*task.Task) task.PostBody { <-block; return nil }, nil)
	t2, _ := s.Next(func(*task.Task) task.PostBody { <-block; return nil }, nil)
	t3, _ := s.Next(func(*task.Task) task.PostBody { <-block; return nil }, nil)
	t1.Start()
	t2.Start()
	t3.Start()

	s.CancelPrevious()
	close(block)

	fmt.Println(t1.State().IsCanceled(), t2.State().IsCanceled(), t3.State().IsCanceled())
	// Output:
	// true true false
}
