package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Concurrent send-message load generator against a running server.
// Registers throwaway users, opens a private conversation, then hammers
// the send endpoint and reports throughput.
func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "server base URL")
		workers  = flag.Int("workers", 10, "concurrent senders")
		messages = flag.Int("messages", 100, "messages per sender")
	)
	flag.Parse()

	sender := mustRegister(*baseURL, fmt.Sprintf("bench_sender_%d", time.Now().UnixNano()))
	recipient := mustRegister(*baseURL, fmt.Sprintf("bench_recipient_%d", time.Now().UnixNano()))

	conversationID := mustOpenPrivate(*baseURL, sender.token, recipient.id)
	log.Printf("conversation %d ready, %d workers x %d messages", conversationID, *workers, *messages)

	var sent, failed int64
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < *messages; i++ {
				if err := sendMessage(*baseURL, sender.token, conversationID, fmt.Sprintf("bench %d/%d", worker, i)); err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&sent, 1)
			}
		}(w)
	}
	wg.Wait()

	elapsed := time.Since(start)
	log.Printf("sent=%d failed=%d elapsed=%s rate=%.1f msg/s",
		sent, failed, elapsed, float64(sent)/elapsed.Seconds())
}

type benchUser struct {
	id    uint
	token string
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func postJSON(url, token string, payload interface{}) (*envelope, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("code %d: %s", env.Code, env.Message)
	}
	return &env, nil
}

func mustRegister(baseURL, username string) benchUser {
	env, err := postJSON(baseURL+"/api/v1/users/register", "", map[string]string{
		"username": username,
		"password": "benchpass123",
	})
	if err != nil {
		log.Fatalf("register %s: %v", username, err)
	}

	var data struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		log.Fatalf("decode register response: %v", err)
	}
	return benchUser{id: data.User.ID, token: data.AccessToken}
}

func mustOpenPrivate(baseURL, token string, recipientID uint) uint {
	env, err := postJSON(baseURL+"/api/v1/conversations/private", token, map[string]interface{}{
		"recipient_id": recipientID,
		"content":      "bench start",
	})
	if err != nil {
		log.Fatalf("open private conversation: %v", err)
	}

	var data struct {
		Conversation struct {
			ID uint `json:"id"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		log.Fatalf("decode conversation response: %v", err)
	}
	return data.Conversation.ID
}

func sendMessage(baseURL, token string, conversationID uint, content string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("content", content)
	_ = writer.Close()

	url := fmt.Sprintf("%s/api/v1/conversations/%d/messages", baseURL, conversationID)
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.Code != 0 {
		return fmt.Errorf("code %d: %s", env.Code, env.Message)
	}
	return nil
}
