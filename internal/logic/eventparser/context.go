package eventparser

import "errors"

var ErrExecutionStackUnderflow = errors.New("execution stack underflow")

// cpiMarker 表示当前执行的是其他程序，不关心具体是哪个
const cpiMarker = "cpi"

// ExecutionContext CPI 调用栈，栈顶为当前执行的程序。
// 只属于一次日志扫描，不跨交易、不跨 goroutine 共享。
type ExecutionContext struct {
	stack []string
}

func (c *ExecutionContext) Push(program string) {
	c.stack = append(c.stack, program)
}

// Pop 空栈时返回 ErrExecutionStackUnderflow
func (c *ExecutionContext) Pop() error {
	if len(c.stack) == 0 {
		return ErrExecutionStackUnderflow
	}
	c.stack = c.stack[:len(c.stack)-1]
	return nil
}

// Program 当前执行的程序；空栈时返回 ErrExecutionStackUnderflow
func (c *ExecutionContext) Program() (string, error) {
	if len(c.stack) == 0 {
		return "", ErrExecutionStackUnderflow
	}
	return c.stack[len(c.stack)-1], nil
}

func (c *ExecutionContext) Depth() int {
	return len(c.stack)
}
