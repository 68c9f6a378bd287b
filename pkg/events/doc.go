/*
Package events provides an in-memory broker for burrow lifecycle events.

The scheduler and the controller publish events when requests change and
when allocations succeed, fail or are released. Subscribers pass topic
prefixes to select what they receive:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe("allocation.")
	for event := range sub {
		fmt.Println(event.Type, event.Metadata["request"])
	}

Publishing never blocks. An event is dropped for a subscriber whose
buffer is full, and Dropped reports how many were lost. Components that
need no events use Discard.
*/
package events
