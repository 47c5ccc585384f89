package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleDashboard serves a status page that polls /api/runs/current.
func (s *Server) handleDashboard(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>pubharvest</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, system-ui, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .header { background: #1e293b; padding: 1.5rem 2rem; border-bottom: 1px solid #475569; display: flex; justify-content: space-between; align-items: center; }
        .header h1 { font-size: 1.5rem; color: #38bdf8; }
        .status { padding: 0.5rem 1rem; border-radius: 9999px; font-size: 0.875rem; font-weight: 600; background: #854d0e; color: #fde047; }
        .status.running { background: #166534; color: #4ade80; }
        .status.stopping { background: #991b1b; color: #fca5a5; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 1rem; padding: 2rem; }
        .card { background: #1e293b; border: 1px solid #334155; border-radius: 12px; padding: 1.5rem; }
        .card .label { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; color: #94a3b8; margin-bottom: 0.5rem; }
        .card .value { font-size: 2rem; font-weight: 700; color: #f1f5f9; }
        .card.success .value { color: #4ade80; }
        .card.error .value { color: #f87171; }
        .progress { padding: 0 2rem; color: #94a3b8; }
        .footer { text-align: center; padding: 1rem; color: #475569; font-size: 0.75rem; }
    </style>
</head>
<body>
    <div class="header">
        <h1>pubharvest <span id="source"></span></h1>
        <span class="status" id="status">idle</span>
    </div>
    <div class="grid">
        <div class="card success"><div class="label">Authors Processed</div><div class="value" id="authors_processed">0</div></div>
        <div class="card error"><div class="label">Authors With Errors</div><div class="value" id="authors_with_errors">0</div></div>
        <div class="card"><div class="label">Publications Fetched</div><div class="value" id="publications_fetched">0</div></div>
        <div class="card success"><div class="label">Created</div><div class="value" id="publications_created">0</div></div>
        <div class="card"><div class="label">Updated</div><div class="value" id="publications_updated">0</div></div>
        <div class="card error"><div class="label">Failed</div><div class="value" id="publications_failed">0</div></div>
        <div class="card"><div class="label">Pages Loaded</div><div class="value" id="pages_loaded">0</div></div>
        <div class="card"><div class="label">Elapsed</div><div class="value" id="elapsed">-</div></div>
    </div>
    <div class="progress" id="progress"></div>
    <div class="footer">Refreshes every 2s</div>
    <script>
        const keys = ['authors_processed','authors_with_errors','publications_fetched','publications_created','publications_updated','publications_failed','pages_loaded','elapsed'];
        async function refresh() {
            try {
                const r = await fetch('/api/runs/current');
                const d = await r.json();
                const st = document.getElementById('status');
                st.textContent = d.state || 'idle';
                st.className = 'status ' + (d.state || 'idle');
                document.getElementById('source').textContent = d.source ? '· ' + d.source : '';
                let stats = d.stats;
                if (!stats && d.last) {
                    stats = d.last.counters;
                    st.textContent = 'last run ' + d.last.status;
                }
                stats = stats || {};
                keys.forEach(k => {
                    const el = document.getElementById(k);
                    if (el && stats[k] !== undefined) el.textContent = typeof stats[k] === 'number' ? stats[k].toLocaleString() : stats[k];
                });
                const p = d.progress;
                document.getElementById('progress').textContent = p ? p.current + '/' + p.total + ' ' + p.message : '';
            } catch(e) {}
        }
        setInterval(refresh, 2000);
        refresh();
    </script>
</body>
</html>`
