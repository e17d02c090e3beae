package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/media"
	"lifeblocks/api/internal/progress"
)

// maxPatchBytes bounds a JSON block body.
const maxPatchBytes = 1 << 20

// handleBoards serves /api/boards and everything below it. parts excludes
// the "api/boards" prefix.
func (s *HTTPServer) handleBoards(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			boards, err := s.service.ListBoards(ctx, session)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
		case http.MethodPost:
			var body CreateBoardInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			board, err := s.service.CreateBoard(ctx, session, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, board)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	boardID := parts[0]
	rest := parts[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			board, role, err := s.service.GetBoard(ctx, session, boardID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"board":     board,
				"role":      role,
				"imageUrls": s.service.ImageURLs(ctx, board),
			})
		case http.MethodDelete:
			if err := s.service.DeleteBoard(ctx, session, boardID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[0] {
	case "blocks":
		s.handleBlocks(w, r, session, boardID, rest[1:])
		return
	case "members":
		s.handleMembers(w, r, session, boardID, rest[1:])
		return
	}

	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && rest[0] == "mobile-order":
		var body struct {
			BlockID string `json:"blockId"`
			Index   int    `json:"index"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		order, err := s.service.MoveBlock(ctx, session, boardID, body.BlockID, body.Index)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mobileOrder": order})

	case r.Method == http.MethodGet && rest[0] == "analytics":
		snapshot, err := s.service.Analytics(ctx, session, boardID, r.URL.Query().Get("date"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)

	case r.Method == http.MethodGet && rest[0] == "export":
		result, err := s.service.Export(ctx, session, boardID, r.URL.Query().Get("format"), r.URL.Query().Get("date"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleBlocks(w http.ResponseWriter, r *http.Request, session Session, boardID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxPatchBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "unreadable body", nil)
			return
		}
		block, err := blocks.Decode(data)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		created, err := s.service.AddBlock(ctx, session, boardID, block)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	blockID := parts[0]
	rest := parts[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPatch:
			patch, err := io.ReadAll(io.LimitReader(r.Body, maxPatchBytes))
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", "unreadable body", nil)
				return
			}
			block, err := s.service.UpdateBlock(ctx, session, boardID, blockID, patch)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, block)
		case http.MethodDelete:
			if err := s.service.DeleteBlock(ctx, session, boardID, blockID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "checks":
		var body CheckInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Check(ctx, session, boardID, blockID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodPut && len(rest) == 1 && rest[0] == "hidden":
		var body struct {
			Hidden *bool `json:"hidden"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Hidden == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "hidden is required", map[string]any{"field": "hidden"})
			return
		}
		block, err := s.service.SetHidden(ctx, session, boardID, blockID, *body.Hidden)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, block)

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "series":
		days, err := queryInt(r, "days", progress.DefaultSeriesDays)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "days must be an integer", map[string]any{"field": "days"})
			return
		}
		series, err := s.service.Series(ctx, session, boardID, blockID, r.URL.Query().Get("end"), days)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"blockId": blockID, "series": series})

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "images":
		s.handleImageUpload(w, r, session, boardID, blockID)

	case r.Method == http.MethodDelete && len(rest) >= 2 && rest[0] == "images":
		// Object keys contain slashes; the rest of the path is the key.
		key := strings.Join(rest[1:], "/")
		block, err := s.service.RemoveImage(ctx, session, boardID, blockID, key)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, block)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleImageUpload(w http.ResponseWriter, r *http.Request, session Session, boardID, blockID string) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, media.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	block, err := s.service.AddImage(r.Context(), session, boardID, blockID, ImageUpload{
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (s *HTTPServer) handleMembers(w http.ResponseWriter, r *http.Request, session Session, boardID string, parts []string) {
	ctx := r.Context()

	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		members, err := s.service.ListMembers(ctx, session, boardID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})

	case r.Method == http.MethodPut && len(parts) <= 1:
		var body MemberInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if len(parts) == 1 {
			body.UserID = parts[0]
		}
		member, err := s.service.SetMember(ctx, session, boardID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, member)

	case r.Method == http.MethodDelete && len(parts) == 1:
		if err := s.service.RemoveMember(ctx, session, boardID, parts[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}
