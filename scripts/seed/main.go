// Seeds a demo organization and bot so a fresh environment can be exercised
// end to end:
//
//	DATABASE_URL=postgres://... go run ./scripts/seed
//
// Prints the org API key and bot ID on success. Safe to re-run; it upserts by
// org name.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type intentSeed struct {
	name      string
	priority  int
	phrases   []string
	responses []string
}

var demoIntents = []intentSeed{
	{
		name:     "greeting",
		priority: 10,
		phrases: []string{
			"hello", "hi there", "hey", "good morning", "good afternoon",
			"is anyone there", "hi i need some help",
		},
		responses: []string{
			"Hello! How can I help you today?",
			"Hi there! What can I do for you?",
		},
	},
	{
		name:     "hours",
		priority: 5,
		phrases: []string{
			"what are your hours", "when are you open", "are you open today",
			"what time do you close", "opening hours please",
		},
		responses: []string{
			"We're open Monday through Friday, 9am to 6pm.",
		},
	},
	{
		name:     "order_status",
		priority: 5,
		phrases: []string{
			"where is my order", "track my order", "order status",
			"has my order shipped", "when will my package arrive",
			"check on order {order_id}",
		},
		responses: []string{
			"I can help with that. Your order {order_id} is being looked up now.",
			"Let me check order {order_id} for you.",
		},
	},
	{
		name:     "goodbye",
		priority: 1,
		phrases: []string{
			"bye", "goodbye", "see you later", "thanks bye", "that is all",
		},
		responses: []string{
			"Goodbye! Come back any time.",
			"Thanks for chatting with us!",
		},
	},
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	apiKey := "pk_demo_" + uuid.NewString()
	var orgID uuid.UUID
	err = db.QueryRowContext(ctx, `
		SELECT id, api_key FROM orgs WHERE name = 'Demo Org'
	`).Scan(&orgID, &apiKey)
	if err == sql.ErrNoRows {
		err = db.QueryRowContext(ctx, `
			INSERT INTO orgs (name, contact_email, api_key)
			VALUES ('Demo Org', 'demo@parley.test', $1)
			RETURNING id
		`, apiKey).Scan(&orgID)
	}
	if err != nil {
		log.Fatalf("upsert org: %v", err)
	}

	var botID uuid.UUID
	err = db.QueryRowContext(ctx, `
		INSERT INTO bots (org_id, name, description, default_response, confidence_threshold)
		VALUES ($1, 'Demo Support Bot', 'Seeded demo bot',
		        'Sorry, I did not quite catch that. Could you rephrase?', 0.6)
		RETURNING id
	`, orgID).Scan(&botID)
	if err != nil {
		log.Fatalf("insert bot: %v", err)
	}

	for _, in := range demoIntents {
		var intentID uuid.UUID
		err := db.QueryRowContext(ctx, `
			INSERT INTO intents (bot_id, name, priority) VALUES ($1, $2, $3)
			RETURNING id
		`, botID, in.name, in.priority).Scan(&intentID)
		if err != nil {
			log.Fatalf("insert intent %s: %v", in.name, err)
		}
		for _, phrase := range in.phrases {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO training_phrases (intent_id, text) VALUES ($1, $2)
			`, intentID, phrase); err != nil {
				log.Fatalf("insert phrase: %v", err)
			}
		}
		for i, resp := range in.responses {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO responses (intent_id, text, priority) VALUES ($1, $2, $3)
			`, intentID, resp, len(in.responses)-i); err != nil {
				log.Fatalf("insert response: %v", err)
			}
		}
	}

	orderValues, _ := json.Marshal([]map[string]any{
		{"value": "express", "synonyms": []string{"express shipping", "overnight"}},
		{"value": "standard", "synonyms": []string{"standard shipping", "regular"}},
	})
	if _, err := db.ExecContext(ctx, `
		INSERT INTO entities (bot_id, name, entity_type, value_set, pattern)
		VALUES ($1, 'shipping_method', 'list', $2, ''),
		       ($1, 'order_id', 'regex', '[]', 'ORD-[0-9]{6}')
	`, botID, orderValues); err != nil {
		log.Fatalf("insert entities: %v", err)
	}

	fmt.Println("seeded demo data")
	fmt.Printf("  org api key: %s\n", apiKey)
	fmt.Printf("  bot id:      %s\n", botID)
	fmt.Println("train it with: POST /admin/bots/" + botID.String() + "/train")
}
