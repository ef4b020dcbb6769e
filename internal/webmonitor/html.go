package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>VIPERS Surveillance Dashboard</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <link rel="stylesheet" href="/assets/dashboard.css">
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">VIPERS Surveillance Dashboard</div>
            <span class="badge" id="state-badge">Idle</span>
        </div>

        <div class="grid">
            <div class="panel feed">
                <div class="controls">
                    <label><input type="radio" name="mode" value="playback" checked> Drone footage</label>
                    <label><input type="radio" name="mode" value="live"> Live camera</label>
                    <button type="button" id="btn-toggle">Play</button>
                    <button type="button" id="btn-stop">Stop</button>
                    <button type="button" id="btn-record">Record</button>
                </div>
                <div class="warning" id="session-warning" hidden></div>
                <img id="stream" src="/stream" alt="Annotated video feed">
                <p class="footer-note" id="stream-footer">--</p>
            </div>

            <div class="panel">
                <h2>Live Alerts</h2>
                <div class="alert" id="alert-panel">System monitoring...</div>
            </div>

            <div class="panel">
                <h2>Event Calendar</h2>
                <input type="date" id="date-picker">
                <div id="day-result">--</div>
            </div>

            <div class="panel">
                <h2>Camera Status</h2>
                <ul id="camera-list"></ul>
            </div>

            <div class="panel wide">
                <h2>Event Log</h2>
                <pre id="log-view">No logs available.</pre>
            </div>
        </div>
    </div>

    <script>
    const $ = (id) => document.getElementById(id);
    const selectedMode = () => document.querySelector('input[name="mode"]:checked').value;

    async function post(path, body) {
        const res = await fetch(path, {
            method: 'POST',
            headers: {'Content-Type': 'application/json'},
            body: body ? JSON.stringify(body) : undefined,
        });
        const data = await res.json().catch(() => ({}));
        if (!res.ok) {
            $('session-warning').textContent = data.error || res.statusText;
            $('session-warning').hidden = false;
        } else {
            $('session-warning').hidden = true;
        }
        return data;
    }

    function renderSession(s) {
        $('state-badge').textContent = s.state + (s.detected_today ? ' (logged)' : '');
        $('btn-toggle').textContent = s.is_playing ? 'Pause' : 'Play';
        $('stream-footer').textContent = s.mode + ' - ' + s.frames + ' frames, ' + s.detections + ' detections';
    }

    function renderAlert(a) {
        $('alert-panel').textContent = a.message;
        $('alert-panel').className = a.alert ? 'alert alert-on' : 'alert';
    }

    async function refreshLog() {
        const res = await fetch('/api/logs');
        $('log-view').textContent = await res.text();
    }

    async function refreshDay() {
        const date = $('date-picker').value;
        if (!date) return;
        const res = await fetch('/api/logs/day?date=' + encodeURIComponent(date));
        const data = await res.json();
        $('day-result').textContent = data.message || data.error;
    }

    async function refreshCameras() {
        const data = await (await fetch('/api/camera_status')).json();
        $('camera-list').innerHTML = '';
        for (const c of data.cameras) {
            const li = document.createElement('li');
            li.textContent = c.name + ': ' + c.detail;
            li.className = c.online ? 'online' : 'offline';
            $('camera-list').appendChild(li);
        }
    }

    $('btn-toggle').onclick = async () => {
        const mode = selectedMode();
        if (mode === 'playback') {
            renderSession(await post('/api/session/toggle'));
        } else {
            renderSession(await post('/api/session/start', {mode}));
        }
    };
    $('btn-stop').onclick = async () => renderSession(await post('/api/session/stop'));
    $('btn-record').onclick = async () => {
        const st = await (await fetch('/api/recording/status')).json();
        const data = await post(st.recording ? '/api/recording/stop' : '/api/recording/start');
        $('btn-record').textContent = data.status === 'recording' ? 'Stop recording' : 'Record';
    };
    document.querySelectorAll('input[name="mode"]').forEach((el) => {
        el.onchange = async () => renderSession(await post('/api/session/start', {mode: selectedMode()}));
    });
    $('date-picker').valueAsDate = new Date();
    $('date-picker').onchange = refreshDay;

    const status = new EventSource('/api/status/stream');
    let lastLine = null;
    status.onmessage = (ev) => {
        const s = JSON.parse(ev.data);
        renderSession(s.session);
        renderAlert(s.log.alert);
        if (s.log.alert.last_line !== lastLine) {
            lastLine = s.log.alert.last_line;
            refreshLog();
            refreshDay();
        }
    };

    refreshCameras();
    refreshLog();
    refreshDay();
    </script>
</body>
</html>
`
