/*
Package engine wires conversational events through two eventq queues and
an ordered middleware chain per direction.

Incoming events (user to bot) and outgoing events (bot to user) each have
their own queue keyed by event.Key, so one conversation is processed
strictly in order while other conversations proceed independently.

	eng := engine.New(engine.WithLogger(logger))
	defer eng.Close()

	eng.Register(engine.Middleware{
	    Name:        "nlu",
	    Description: "annotates intents",
	    Direction:   event.Incoming,
	    Order:       10,
	    Handler: func(ctx context.Context, evt *event.Event) error {
	        return nlu.Annotate(ctx, evt)
	    },
	})

	eng.SendEvent(ctx, evt)

A middleware returns Swallow to stop its chain without failing the event.
Any other error fails the dispatch; the queue then retries the event
according to its policy (see WithIncomingOptions and WithOutgoingOptions).

Before sending a new answer, a dialog step can wait for earlier replies
of the same conversation to go out:

	if err := eng.WaitOutgoingQueueEmpty(ctx, evt); err != nil {
	    return err
	}
*/
package engine
