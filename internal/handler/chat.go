package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"

    "github.com/iplance/iplance-core/internal/middleware"
    "github.com/iplance/iplance-core/internal/model"
    "github.com/iplance/iplance-core/internal/realtime"
    "github.com/iplance/iplance-core/internal/repository"
    "github.com/iplance/iplance-core/internal/utils"
)

// ChatHandler serves the conversation REST endpoints and hands websocket
// upgrades to the gateway.
type ChatHandler struct {
    Users    *repository.UserRepo
    Chats    *repository.ChatRepo
    Messages *repository.MessageRepo
    Codec    *utils.MessageCodec
    Gateway  *realtime.ChatGateway
}

type createChatReq struct {
    CustomerID  uuid.UUID `json:"customer_id"`
    PerformerID uuid.UUID `json:"performer_id"`
}

// Create opens a conversation between a customer and a performer.  The
// caller must be one of the two.
func (h *ChatHandler) Create(c echo.Context) error {
    me, ok := middleware.Principal(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }
    var req createChatReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.CustomerID == uuid.Nil || req.PerformerID == uuid.Nil || req.CustomerID == req.PerformerID {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_id and performer_id must be two different users"})
    }
    if me.ID != req.CustomerID && me.ID != req.PerformerID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "you can only create chats you participate in"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    for _, id := range []uuid.UUID{req.CustomerID, req.PerformerID} {
        if _, err := h.Users.GetByID(ctx, id); err != nil {
            if errors.Is(err, repository.ErrNotFound) {
                return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
            }
            c.Logger().Errorf("create chat: load user %s: %v", id, err)
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create chat failed"})
        }
    }

    conv, err := h.Chats.Create(ctx, req.CustomerID, req.PerformerID)
    if err != nil {
        if errors.Is(err, repository.ErrConflict) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "chat already exists"})
        }
        c.Logger().Errorf("create chat: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create chat failed"})
    }
    return c.JSON(http.StatusCreated, conv)
}

// List returns the caller's conversations.
func (h *ChatHandler) List(c echo.Context) error {
    me, ok := middleware.Principal(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    items, err := h.Chats.ListForUser(ctx, me.ID)
    if err != nil {
        c.Logger().Errorf("list chats: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list chats failed"})
    }
    if items == nil {
        items = []model.Conversation{}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// History pages through a conversation's messages with content decrypted.
// Undecryptable rows are shown with a placeholder instead of failing the page.
func (h *ChatHandler) History(c echo.Context) error {
    me, ok := middleware.Principal(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
    }
    skip, limit, ok := page(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid skip or limit"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    conv, err := h.Chats.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "chat not found"})
        }
        c.Logger().Errorf("messages: load chat %d: %v", id, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list messages failed"})
    }
    if !conv.HasParticipant(me.ID) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "you are not a participant of this chat"})
    }

    msgs, err := h.Messages.List(ctx, id, skip, limit)
    if err != nil {
        c.Logger().Errorf("messages: list chat %d: %v", id, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list messages failed"})
    }
    for i := range msgs {
        msgs[i].Content = h.Codec.DecryptOr(msgs[i].Content, utils.DecryptFailedPlaceholder)
    }
    if msgs == nil {
        msgs = []model.Message{}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": msgs, "skip": skip, "limit": limit})
}

// Socket upgrades GET /ws/chat/:chat_id.  Authentication happens inside the
// gateway from the token query parameter.
func (h *ChatHandler) Socket(c echo.Context) error {
    id, ok := pathID(c, "chat_id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
    }
    h.Gateway.Serve(c.Response(), c.Request(), id)
    return nil
}
