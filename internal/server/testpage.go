package server

import (
	"net/http"

	"go.uber.org/zap"
)

// TestPageHandler serves an HTML page for exercising the room protocol by
// hand: create a room, join or rejoin with a username, and chat.
func (s *Service) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write([]byte(testPageHTML)); err != nil {
		s.logger.Warn("writing test page", zap.Error(err))
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>roomcast test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { padding: 5px; margin-right: 6px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>roomcast test page</h1>
    <div>
        <input type="text" id="username" placeholder="username">
        <input type="text" id="roomId" placeholder="room code">
        <button onclick="send('createRoom', {username: username.value})">Create</button>
        <button onclick="send('join', {roomId: roomId.value, username: username.value})">Join</button>
        <button onclick="send('rejoin', {roomId: roomId.value, username: username.value})">Rejoin</button>
    </div>
    <div>
        <input type="text" id="text" placeholder="message" size="50">
        <button onclick="send('chat', {roomId: roomId.value, username: username.value, message: text.value}); text.value=''">Send</button>
    </div>
    <div id="log"></div>

    <script>
        const log = document.getElementById('log');
        const username = document.getElementById('username');
        const roomId = document.getElementById('roomId');
        const text = document.getElementById('text');

        function line(msg) {
            const div = document.createElement('div');
            div.textContent = msg;
            log.appendChild(div);
            log.scrollTop = log.scrollHeight;
        }

        const ws = new WebSocket('ws://' + location.host + '/ws');
        ws.onopen = () => line('connected');
        ws.onclose = () => line('disconnected');
        ws.onmessage = (ev) => {
            const msg = JSON.parse(ev.data);
            line(msg.messageType + ': ' + JSON.stringify(msg.payload));
            if (msg.messageType === 'connection' && msg.payload.roomId) {
                roomId.value = msg.payload.roomId;
            }
        };

        function send(messageType, payload) {
            ws.send(JSON.stringify({messageType, payload}));
        }
    </script>
</body>
</html>`
