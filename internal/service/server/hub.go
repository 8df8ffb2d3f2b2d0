package server

import (
	"context"
	"net/http"

	"iou_ledger/internal/model"
	"iou_ledger/internal/utils/log"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func (s *HttpServer) HandleInitWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("username")
		if username == "" {
			http.Error(w, "username cannot be empty", http.StatusBadRequest)
			return
		}

		if s.opts.RequireSession {
			owner, err := s.svc.Auth.Session(r.Context(), r.URL.Query().Get("session"))
			if err != nil || owner != username {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		if s.connected(username) {
			http.Error(w, "duplicated username", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &wsClient{conn: conn}
		s.mu.Lock()
		if _, taken := s.mapper[username]; taken {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.mapper[username] = client
		s.mu.Unlock()

		go s.processWSMessage(username, client)
		if err := s.ForwardUnsentMessages(context.Background(), username); err != nil {
			log.Error("forward msg failed", zap.Error(err))
		}
	}
}

// processWSMessage drains the connection until it closes. Clients only
// listen; anything they send is dropped.
func (s *HttpServer) processWSMessage(username string, client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			log.Debug("web socket closed", zap.String("user", username), zap.Error(err))
			s.mu.Lock()
			if s.mapper[username] == client {
				delete(s.mapper, username)
			}
			s.mu.Unlock()
			client.conn.Close()
			return
		}
	}
}

// Notify pushes msg to its recipient when connected and queues it
// otherwise.
func (s *HttpServer) Notify(ctx context.Context, msg *model.Message) {
	s.mu.RLock()
	client, ok := s.mapper[msg.Recipient]
	s.mu.RUnlock()

	if ok {
		err := client.write(msg)
		if err == nil {
			return
		}
		log.Warn("push message failed, queueing", zap.String("user", msg.Recipient), zap.Error(err))
	}

	if err := s.PutMessagesToCache(ctx, msg.Recipient, []*model.Message{msg}); err != nil {
		log.Error("PutMessagesToCache failed", zap.Error(err))
	}
}

func (s *HttpServer) ForwardUnsentMessages(ctx context.Context, username string) error {
	messages, err := s.GetMessagesFromCache(ctx, username)
	if err != nil {
		log.Error("ForwardUnsentMessages failed: ", zap.Error(err))
		return err
	}

	s.mu.RLock()
	client, ok := s.mapper[username]
	s.mu.RUnlock()
	if !ok {
		return s.PutMessagesToCache(ctx, username, messages)
	}

	for i, message := range messages {
		if err := client.write(message); err != nil {
			return s.PutMessagesToCache(ctx, username, messages[i:])
		}
	}
	return nil
}

func (s *HttpServer) connected(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.mapper[username]
	return ok
}

func (s *HttpServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, client := range s.mapper {
		client.conn.Close()
		delete(s.mapper, name)
	}
}

func (c *wsClient) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
