package server

import "net/http"

// DashboardHandler serves the management dashboard HTML page
func DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(dashboardHTML))
	}
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Antigravity Account Switch</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; max-width: 860px; margin: 30px auto; padding: 0 20px; background: #1a1a2e; color: #eee; }
  h1 { font-size: 1.5em; }
  .card { background: #16213e; border-radius: 8px; padding: 16px 20px; margin: 12px 0; }
  .card.active { border-left: 4px solid #4ade80; }
  .email { font-weight: 600; }
  .badge { display: inline-block; background: #4ade80; color: #14532d; font-size: 0.75em; border-radius: 10px; padding: 2px 10px; margin-left: 8px; }
  .quota { margin-top: 10px; font-size: 0.9em; }
  .quota-row { display: flex; justify-content: space-between; padding: 2px 0; color: #9ca3af; }
  .quota-row .pct { color: #fbbf24; }
  .error { color: #f87171; }
  .notice { color: #4ade80; }
  button { background: #0f3460; color: #eee; border: 0; border-radius: 6px; padding: 8px 14px; cursor: pointer; margin-right: 6px; }
  button:hover { background: #533483; }
  button:disabled { opacity: 0.5; cursor: wait; }
  .toolbar { margin: 16px 0; }
  .muted { color: #6b7280; font-size: 0.85em; }
</style>
</head>
<body>
<h1>🔄 Antigravity Account Switch</h1>
<div class="toolbar">
  <button onclick="location.href='/auth/login'">➕ Add Google Account</button>
  <button onclick="refresh()">🔃 Refresh Quotas</button>
  <button onclick="location.href='/api/export'">📤 Export</button>
  <button onclick="discover()">🔍 Discover Local Credentials</button>
</div>
<div id="status"></div>
<div id="accounts"><p class="muted">Loading…</p></div>
<script>
function esc(s) {
  const d = document.createElement('div');
  d.textContent = s == null ? '' : String(s);
  return d.innerHTML;
}

function showStatus(msg, cls) {
  document.getElementById('status').innerHTML = msg ? '<p class="' + cls + '">' + esc(msg) + '</p>' : '';
}

async function refresh() {
  const el = document.getElementById('accounts');
  el.innerHTML = '<p class="muted">Loading accounts and quotas…</p>';
  const res = await fetch('/api/accounts');
  const data = await res.json();
  if (!data.success) { showStatus(data.error, 'error'); return; }
  if (data.accounts.length === 0) {
    el.innerHTML = '<p class="muted">No accounts yet. Add one with the button above.</p>';
    return;
  }
  el.innerHTML = data.accounts.map(a => {
    let quota = '';
    if (a.quota.error) {
      quota = '<div class="quota error">⚠ ' + esc(a.quota.error) + '</div>';
    } else if (a.quota.models) {
      quota = '<div class="quota">' + a.quota.models.map(m =>
        '<div class="quota-row"><span>' + esc(m.displayName) + '</span><span class="pct">' + m.percentage + '%</span></div>'
      ).join('') + '</div>';
    }
    const active = a.isActive ? '<span class="badge">ACTIVE</span>' : '';
    const actions = a.isActive ? '' :
      '<button onclick="switchTo(\'' + a.id + '\', this)">Switch</button>';
    return '<div class="card' + (a.isActive ? ' active' : '') + '">' +
      '<span class="email">' + esc(a.email) + '</span>' + active +
      '<div style="margin-top:8px">' + actions +
      '<button onclick="remove(\'' + a.id + '\')">Remove</button></div>' +
      quota + '</div>';
  }).join('');
}

async function switchTo(id, btn) {
  btn.disabled = true;
  btn.textContent = 'Switching…';
  showStatus('Closing Antigravity and rewriting its signed-in identity…', 'muted');
  const res = await fetch('/api/accounts/' + id + '/switch', { method: 'POST' });
  const data = await res.json();
  if (data.success) {
    showStatus('✅ Switched to ' + data.email + '. Antigravity is relaunching.', 'notice');
  } else {
    showStatus(data.error, 'error');
  }
  refresh();
}

async function remove(id) {
  if (!confirm('Remove this account?')) return;
  await fetch('/api/accounts/' + id, { method: 'DELETE' });
  refresh();
}

async function discover() {
  showStatus('Scanning local tool configs…', 'muted');
  const res = await fetch('/api/discovery/import', { method: 'POST' });
  const data = await res.json();
  if (data.success) {
    showStatus('🔍 Imported ' + data.added + ' new, updated ' + data.updated + ', skipped ' + data.skipped, 'notice');
  } else {
    showStatus(data.error, 'error');
  }
  refresh();
}

const params = new URLSearchParams(location.search);
if (params.get('success') === 'account_added') {
  showStatus('✅ Account added: ' + params.get('email'), 'notice');
  history.replaceState(null, '', '/');
} else if (params.get('error')) {
  showStatus('Sign-in failed: ' + params.get('error'), 'error');
  history.replaceState(null, '', '/');
}
refresh();
</script>
</body>
</html>`
