package messaging

import (
	"strings"

	"github.com/rabbitmq/amqp091-go"
)

const (
	KitchenExchange      = "kitchen_topic"
	NotificationExchange = "notifications_fanout"

	KitchenQueue       = "kitchen_queue"
	NotificationsQueue = "notifications_queue"

	// maxPriority matches the heaviest KOT priority weight.
	maxPriority = 10
)

// Binding routes messages from an exchange into a queue.
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

// KitchenBindings lists every kitchen queue and the tickets it receives.
// kitchen_queue sees everything; the others serve dedicated stations.
var KitchenBindings = []Binding{
	{KitchenQueue, KitchenExchange, "kitchen.#"},
	{"kitchen_dine_in_queue", KitchenExchange, "kitchen.dine_in.*"},
	{"kitchen_takeaway_queue", KitchenExchange, "kitchen.takeaway.*"},
	{"kitchen_delivery_queue", KitchenExchange, "kitchen.delivery.*"},
	{"kitchen_urgent_queue", KitchenExchange, "kitchen.*.urgent"},
}

// QueuesFor returns the kitchen queues a routing key is delivered to.
func QueuesFor(routingKey string) []string {
	var queues []string
	for _, b := range KitchenBindings {
		if topicMatch(b.RoutingKey, routingKey) {
			queues = append(queues, b.Queue)
		}
	}
	return queues
}

// topicMatch applies AMQP topic rules: "*" matches one word, "#" zero or more.
func topicMatch(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}

func declareTopology(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(KitchenExchange, "topic", true, false, false, false, nil); err != nil {
		return wrapTopology("declare exchange "+KitchenExchange, err)
	}
	if err := ch.ExchangeDeclare(NotificationExchange, "fanout", true, false, false, false, nil); err != nil {
		return wrapTopology("declare exchange "+NotificationExchange, err)
	}

	declared := make(map[string]bool)
	for _, b := range KitchenBindings {
		if !declared[b.Queue] {
			_, err := ch.QueueDeclare(b.Queue, true, false, false, false, amqp091.Table{
				"x-message-ttl":  300000, // 5 minutes TTL
				"x-max-priority": maxPriority,
			})
			if err != nil {
				return wrapTopology("declare queue "+b.Queue, err)
			}
			declared[b.Queue] = true
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
			return wrapTopology("bind queue "+b.Queue+" to "+b.RoutingKey, err)
		}
	}

	if _, err := ch.QueueDeclare(NotificationsQueue, true, false, false, false, nil); err != nil {
		return wrapTopology("declare queue "+NotificationsQueue, err)
	}
	if err := ch.QueueBind(NotificationsQueue, "", NotificationExchange, false, nil); err != nil {
		return wrapTopology("bind queue "+NotificationsQueue, err)
	}
	return nil
}
