package server

import (
	"errors"
	"net/http"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/service/directory"
	"iou_ledger/internal/service/messages"
	"iou_ledger/internal/service/notes"
	"iou_ledger/internal/service/nullifier"
	"iou_ledger/internal/service/transfer"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	createUserRequest struct {
		Username string   `json:"username"`
		Pubkey   string   `json:"pubkey"`
		Address  string   `json:"address"`
		Nonce    string   `json:"nonce"`
		Messages []string `json:"messages"`
		Notes    []string `json:"notes"`
	}

	getUserRequest struct {
		Username string `json:"username"`
		Address  string `json:"address"`
	}

	usernameRequest struct {
		Username string `json:"username"`
	}

	saveNoteRequest struct {
		AssetHash  string `json:"asset_hash"`
		Owner      string `json:"owner"`
		Value      uint64 `json:"value"`
		Step       uint32 `json:"step"`
		ParentNote string `json:"parent_note"`
		OutIndex   string `json:"out_index"`
		Blind      string `json:"blind"`
	}

	getNotesRequest struct {
		OwnerPubKey string  `json:"owner_pub_key"`
		Step        *uint32 `json:"step"`
	}

	noteHistoryRequest struct {
		Data    Bytes  `json:"data"`
		Address string `json:"address"`
		Sender  string `json:"sender"`
	}

	sendMessageRequest struct {
		Sender       string `json:"sender"`
		Recipient    string `json:"recipient"`
		Message      string `json:"message"`
		AttachmentID string `json:"attachment_id"`
	}

	nullifierRequest struct {
		Nullifier string `json:"nullifier"`
		Note      string `json:"note"`
		Step      int32  `json:"step"`
		Owner     string `json:"owner"`
		State     string `json:"state"`
	}

	verifyNullifierRequest struct {
		Nullifier string `json:"nullifier"`
		State     string `json:"state"`
	}

	verifyNullifierResponse struct {
		Status       string            `json:"status"`
		Result       nullifier.Outcome `json:"result"`
		Owner        string            `json:"owner,omitempty"`
		NewlyFlagged bool              `json:"newly_flagged"`
		Nullifier    *model.Nullifier  `json:"nullifier,omitempty"`
	}

	transferRequest struct {
		OwnerUsername     string             `json:"owner_username"`
		RecipientUsername string             `json:"recipient_username"`
		NoteHistory       noteHistoryRequest `json:"note_history"`
		Message           string             `json:"message"`
	}

	challengeRequest struct {
		Username string `json:"username"`
	}

	verifyChallengeRequest struct {
		Username     string `json:"username"`
		Challenge    string `json:"challenge"`
		SignatureHex string `json:"signature_hex"`
	}

	sessionRequest struct {
		SessionID string `json:"session_id"`
	}
)

func (s *HttpServer) CreateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		user, err := s.svc.Directory.Create(r.Context(), directory.CreateInput{
			Username: req.Username,
			Pubkey:   req.Pubkey,
			Address:  req.Address,
			Nonce:    req.Nonce,
			Notes:    req.Notes,
			Messages: req.Messages,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusCreated, "user", user)
	}
}

func (s *HttpServer) GetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req getUserRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		var (
			user *model.User
			err  error
		)
		switch {
		case req.Username != "":
			user, err = s.svc.Directory.GetByUsername(r.Context(), req.Username)
		case req.Address != "":
			user, err = s.svc.Directory.GetByAddress(r.Context(), req.Address)
		default:
			err = fault.Validation("get user", "username or address is required")
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "user", user)
	}
}

func (s *HttpServer) SaveNote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveNoteRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.actingAsKey(r, req.Owner); err != nil {
			writeError(w, r, err)
			return
		}

		note, err := s.svc.Notes.Create(r.Context(), notes.CreateNoteInput{
			AssetHash:  req.AssetHash,
			Owner:      req.Owner,
			Value:      req.Value,
			Step:       req.Step,
			ParentNote: req.ParentNote,
			OutIndex:   req.OutIndex,
			Blind:      req.Blind,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "note", note)
	}
}

func (s *HttpServer) GetNotes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req getNotesRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		list, err := s.svc.Notes.ListByOwner(r.Context(), req.OwnerPubKey, req.Step)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "notes", list)
	}
}

func (s *HttpServer) SaveNoteHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req noteHistoryRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		history, err := s.svc.Histories.Create(r.Context(), notes.CreateHistoryInput{
			Data:    req.Data,
			Address: req.Address,
			Sender:  req.Sender,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "note_history", history)
	}
}

func (s *HttpServer) GetNoteHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req usernameRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		list, err := s.svc.Histories.ListForUser(r.Context(), req.Username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "note_history", list)
	}
}

func (s *HttpServer) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := actingAs(r, req.Sender); err != nil {
			writeError(w, r, err)
			return
		}

		in := messages.SendInput{
			Sender:    req.Sender,
			Recipient: req.Recipient,
			Message:   req.Message,
		}
		if req.AttachmentID != "" {
			id, err := primitive.ObjectIDFromHex(req.AttachmentID)
			if err != nil {
				writeError(w, r, fault.Validation("send message", "attachment_id %q is not an object id", req.AttachmentID))
				return
			}
			in.AttachmentID = &id
		}

		msg, err := s.svc.Messages.Send(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "message", msg)
	}
}

func (s *HttpServer) ReadMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req usernameRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		msgs, err := s.svc.Messages.Read(r.Context(), req.Username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "messages", msgs)
	}
}

func (s *HttpServer) StoreNullifier() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nullifierRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := actingAs(r, req.Owner); err != nil {
			writeError(w, r, err)
			return
		}

		n, err := s.svc.Nullifiers.Submit(r.Context(), nullifier.SubmitInput{
			Nullifier: req.Nullifier,
			Note:      req.Note,
			Step:      req.Step,
			Owner:     req.Owner,
			State:     req.State,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "nullifier", n)
	}
}

func (s *HttpServer) VerifyNullifier() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyNullifierRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		v, err := s.svc.Nullifiers.Check(r.Context(), req.Nullifier, req.State)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, verifyNullifierResponse{
			Status:       "success",
			Result:       v.Outcome,
			Owner:        v.Owner,
			NewlyFlagged: v.NewlyFlagged,
			Nullifier:    v.Record,
		})
	}
}

func (s *HttpServer) TransferNoteHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := actingAs(r, req.OwnerUsername); err != nil {
			writeError(w, r, err)
			return
		}

		msg, err := s.svc.Transfers.Transfer(r.Context(), transfer.TransferInput{
			Sender:    req.OwnerUsername,
			Recipient: req.RecipientUsername,
			Payload:   req.NoteHistory.Data,
			Message:   req.Message,
		})
		if err != nil {
			var pf *fault.PartialFailure
			if errors.As(err, &pf) {
				w.Header().Set("X-Transfer-ID", pf.TransferID)
			}
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "message", msg)
	}
}

func (s *HttpServer) Challenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req challengeRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		challenge, err := s.svc.Auth.IssueChallenge(r.Context(), req.Username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "challenge", challenge)
	}
}

func (s *HttpServer) VerifyChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyChallengeRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		session, err := s.svc.Auth.VerifyChallenge(r.Context(), req.Username, req.Challenge, req.SignatureHex)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "session_id", session)
	}
}

func (s *HttpServer) ValidateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		username, err := s.svc.Auth.Session(r.Context(), req.SessionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "username", username)
	}
}

func (s *HttpServer) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.SessionID == "" {
			writeError(w, r, fault.Validation("logout", "session_id is required"))
			return
		}

		if err := s.svc.Auth.Revoke(r.Context(), req.SessionID); err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "session_id", req.SessionID)
	}
}
