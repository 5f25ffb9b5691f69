// Package supervisor keeps a device connected to its network and to an
// upstream MQTT endpoint, and publishes a periodic status message only
// while both links are healthy.
//
// The [Supervisor] is a single-threaded polling loop over three states:
//
//  1. [AwaitingNetwork]: ask the network driver to join and poll its
//     health predicate every PollInterval until it reports connected.
//  2. [AwaitingEndpoint]: connect to the broker once. A connect failure
//     halts the loop; there is no endpoint retry.
//  3. [Active]: poll the network predicate each cycle, dropping back to
//     AwaitingNetwork when it goes false, and run the [PublishTask]
//     whenever its interval has elapsed.
//
// Every driver call blocks until it completes. The only suspension
// points are the clock sleeps between polls. Endpoint health is never
// consulted for transitions: once established, the endpoint session is
// reused for the life of the process and any reconnection is the
// endpoint driver's own business.
package supervisor
