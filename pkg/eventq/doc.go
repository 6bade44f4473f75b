/*
Package eventq provides an in-process ordered dispatch queue for
conversational events.

# Overview

A Queue routes jobs (one per inbound or outbound message) to a list of
subscribers. Every job has a key, usually bot + channel + conversation.
The queue guarantees:

  - Jobs with the same key reach subscribers strictly in enqueue order,
    one at a time.
  - Jobs with different keys are independent: a slow conversation does
    not hold up the others.
  - Enqueue never blocks and never fails.
  - A failed job is retried ahead of everything else, up to a fixed
    budget, then abandoned (optionally to a DropSink).

# Basic Usage

	q := eventq.New("incoming", func(e *Event) string {
	    return e.BotID + "::" + e.Channel + "::" + e.Target
	})
	defer q.Dispose()

	q.Subscribe(func(ctx context.Context, e *Event) error {
	    return dialog.Process(ctx, e)
	})

	q.Enqueue(evt)

# Dispatch Model

A tick scans the store from the head for the first job whose key is not
locked, locks the key and hands the job to a goroutine that runs every
subscriber in registration order. When the attempt ends the key is
unlocked and another tick is scheduled if work remains. Ticks never
overlap; they are started on demand by Enqueue and by finished
dispatches, and by a low-frequency drain timer as a safety net.

Because dispatches for different keys run on their own goroutines,
subscribers must be safe for concurrent use across keys. Use
WithMaxConcurrency(1) to serialize everything.

# Failure Handling

A subscriber fails a dispatch by returning an error or panicking. The
remaining subscribers are skipped and the ones that already ran are not
rolled back. With the default policy (errors.HotRetry) the job is put at
the head of the store and tried once more immediately. Errors wrapped
with errors.Permanent skip the retry budget.

	q := eventq.New("outgoing", key,
	    eventq.WithRetryPolicy(qerrors.BackoffRetry),
	    eventq.WithDropSink(deadLetters),
	)

# Cancellation and Backpressure

CancelAll removes pending jobs for a key; a dispatch in flight is never
interrupted. WaitEmpty blocks until a key has nothing pending and nothing
in flight:

	if err := q.WaitEmpty(ctx, evt); err != nil {
	    return err // ctx ended first
	}

# Observability

Retries are logged at warn level and abandoned jobs at error level, with
queue, job_id and key attributes. WithMetrics and WithTracing enable
OpenTelemetry instruments and one span per dispatch attempt.
*/
package eventq
