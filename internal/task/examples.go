package task

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// NewSleepTask returns a Factory producing deterministic-latency tasks. Used
// by scenarios that need a known latency distribution.
func NewSleepTask(d time.Duration) Factory {
	return func(taskID int64) Task {
		return sleepTask{taskID: taskID, duration: d}
	}
}

type sleepTask struct {
	taskID   int64
	duration time.Duration
}

func (t sleepTask) Execute() Result {
	start := time.Now()
	time.Sleep(t.duration)
	return Success(t.taskID, time.Since(start))
}

// NewCPUTask returns a Factory producing busy-loop tasks that burn CPU for
// roughly `iterations` rounds of trivial arithmetic. Latency varies with the
// host's scheduling, unlike the sleep task.
func NewCPUTask(iterations int) Factory {
	return func(taskID int64) Task {
		return cpuTask{taskID: taskID, iterations: iterations}
	}
}

type cpuTask struct {
	taskID     int64
	iterations int
}

func (t cpuTask) Execute() Result {
	start := time.Now()
	acc := uint64(t.taskID)
	for i := 0; i < t.iterations; i++ {
		acc = acc*2654435761 + uint64(i)
	}
	// Touch acc via Metadata so the compiler can't prove the loop dead.
	return Result{
		TaskID:       t.taskID,
		LatencyNanos: time.Since(start).Nanoseconds(),
		Success:      true,
		Metadata:     map[string]any{"checksum": acc},
	}
}

// NewFlakyTask returns a Factory whose tasks succeed with the given
// probability and otherwise fail with errMsg "timeout" — the failure
// taxonomy fixture used by scenario S4.
func NewFlakyTask(successRate float64) Factory {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return func(taskID int64) Task {
		return flakyTask{taskID: taskID, successRate: successRate}
	}
}

type flakyTask struct {
	taskID      int64
	successRate float64
}

func (t flakyTask) Execute() Result {
	start := time.Now()
	if rand.Float64() < t.successRate {
		return Success(t.taskID, time.Since(start))
	}
	return Failure(t.taskID, time.Since(start), "timeout")
}

// NewHTTPTask returns a Factory that issues one HTTP request per execution.
// A nil client is replaced by a default client whose transport is
// configured for HTTP/2; a non-nil client is used exactly as given. reqFn
// builds a fresh *http.Request per call (http.Request is not safe to reuse
// across concurrent sends).
func NewHTTPTask(client *http.Client, reqFn func() (*http.Request, error)) Factory {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
		if t, ok := client.Transport.(*http.Transport); ok {
			_ = http2.ConfigureTransport(t)
		} else if client.Transport == nil {
			transport := &http.Transport{}
			_ = http2.ConfigureTransport(transport)
			client.Transport = transport
		}
	}
	return func(taskID int64) Task {
		return httpTask{taskID: taskID, client: client, reqFn: reqFn}
	}
}

type httpTask struct {
	taskID int64
	client *http.Client
	reqFn  func() (*http.Request, error)
}

func (t httpTask) Execute() Result {
	start := time.Now()
	req, err := t.reqFn()
	if err != nil {
		return Failure(t.taskID, time.Since(start), err.Error())
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return Failure(t.taskID, time.Since(start), err.Error())
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if resp.StatusCode >= 400 {
		return Failure(t.taskID, latency, fmt.Sprintf("http status %d", resp.StatusCode))
	}
	return Result{TaskID: t.taskID, LatencyNanos: latency.Nanoseconds(), Success: true}
}

// NewGRPCTask returns a Factory that performs one generic unary RPC per
// execution via conn.Invoke, so it works against any service definition
// without generated stubs — the same shape a load-generation plugin needs
// when the target service is only known at configuration time. newRequest
// and newReply build fresh proto.Message values per call since a
// *grpc.ClientConn is shared across every worker but individual messages
// are not safe to reuse concurrently.
func NewGRPCTask(conn *grpc.ClientConn, method string, newRequest func() proto.Message, newReply func() proto.Message, timeout time.Duration) Factory {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return func(taskID int64) Task {
		return grpcTask{
			taskID:     taskID,
			conn:       conn,
			method:     method,
			newRequest: newRequest,
			newReply:   newReply,
			timeout:    timeout,
		}
	}
}

type grpcTask struct {
	taskID     int64
	conn       *grpc.ClientConn
	method     string
	newRequest func() proto.Message
	newReply   func() proto.Message
	timeout    time.Duration
}

func (t grpcTask) Execute() Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	req := t.newRequest()
	reply := t.newReply()
	if err := t.conn.Invoke(ctx, t.method, req, reply); err != nil {
		return Failure(t.taskID, time.Since(start), err.Error())
	}
	return Success(t.taskID, time.Since(start))
}
