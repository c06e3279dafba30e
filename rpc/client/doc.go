// Package client implements the client side of a subscription session.
//
// A Client is created with Connect over any transport.IClientTransport. It
// sends subscribe, unsubscribe and disconnect requests and delivers the
// notifications of its subscriptions on a channel.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Transport: common.TransportConfig{Type: common.TransportFIFO, Endpoint: "/tmp/kvs/register"},
//	  TimeoutSecond: 5,
//	}
//
//	c, err := client.Connect(config, fifo.NewFIFOClientTransport())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Disconnect()
//
//	if err := c.Subscribe("apple"); err != nil {
//	  log.Fatal(err)
//	}
//	for n := range c.Notifications() {
//	  fmt.Println(n) // (apple,red)
//	}
//
// Thread Safety:
//
//	Requests of one client are serialized. Notifications are read by a
//	background goroutine and must be consumed, otherwise the reader blocks
//	once the buffer is full.
package client
