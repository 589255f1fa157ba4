package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange             = "garage.events"
	PartUsedRoutingKey         = "workshop.part.used.v1"
	UsageReconciledRoutingKey  = "invoice.usage.reconciled.v1"
	StockDepletedRoutingKey    = "stock.depleted.v1"
	invoiceServiceName         = "invoice-service-go"
)

func serviceQueue(serviceName, routingKey string) string {
	return serviceName + "." + routingKey
}

func invoiceQueueName(routingKey string) string {
	return serviceQueue(invoiceServiceName, routingKey)
}

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
