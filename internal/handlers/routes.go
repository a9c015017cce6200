package handlers

import "net/http"

func RegisterRoutes(mux *http.ServeMux, groupHandlers *GroupHandlers, wsHandlers *WebSocketHandlers) {
	mux.HandleFunc("GET /ws/{group}", wsHandlers.HandleWebSocket)
	mux.HandleFunc("GET /groups/{group}", groupHandlers.GroupPage)
	mux.HandleFunc("GET /groups/{group}/active", groupHandlers.ActiveSessions)
}
