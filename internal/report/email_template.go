package report

const digestHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Change Monitor Digest {{.Date.Format "2006-01-02"}}</title>
  <style>
    body { margin: 0; padding: 24px; background-color: #f3f4f6; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; color: #111827; line-height: 1.5; }
    .container { max-width: 640px; margin: 0 auto; background: #ffffff; border-radius: 8px; border: 1px solid #e5e7eb; overflow: hidden; }
    .header { padding: 20px 24px; background: #0b5cad; color: #ffffff; }
    .header h1 { margin: 0; font-size: 22px; }
    .section { padding: 16px 24px; border-top: 1px solid #e5e7eb; }
    .section h2 { margin: 0 0 8px 0; font-size: 16px; color: #0b5cad; }
    .stats td { padding: 4px 16px 4px 0; }
    .card { border: 1px solid #e5e7eb; border-radius: 6px; padding: 10px 12px; margin: 8px 0; }
    .card.high { border-left: 4px solid #dc2626; }
    .card.medium { border-left: 4px solid #d97706; }
    .card.low { border-left: 4px solid #16a34a; }
    .meta { font-size: 12px; color: #6b7280; }
    .quiet { color: #6b7280; font-style: italic; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>Change Monitor</h1>
      <div>Daily digest for {{.Date.Format "Mon, 02 Jan 2006"}}</div>
    </div>

    <div class="section">
      <table class="stats">
        <tr><td>Entities monitored</td><td><strong>{{.Entities}}</strong></td></tr>
        <tr><td>Changes detected</td><td><strong>{{.TotalChanges}}</strong></td></tr>
        <tr><td>Significant</td><td><strong>{{len .Significant}}</strong></td></tr>
      </table>
      {{if .Quiet}}<p class="quiet">No changes detected.</p>{{end}}
    </div>

    {{if .Significant}}
    <div class="section">
      <h2>Significant changes ({{len .Significant}})</h2>
      {{range .Significant}}
      <div class="card {{lower .Level}}">
        <div><strong>{{.EntityID}}</strong> · <a href="{{.URL}}">{{.URL}}</a></div>
        <div class="meta">{{.ChangeType}} · magnitude {{printf "%.2f" .Magnitude}}%{{if .Score}} · score {{.Score.Score}}/10 ({{.Score.Method}}){{end}} · {{.Level}}</div>
        {{if .Keywords}}<div class="meta">Keywords: {{join .Keywords ", "}}</div>{{end}}
        {{if .Score}}{{if .Score.Reasoning}}<p>{{.Score.Reasoning}}</p>{{end}}{{end}}
      </div>
      {{end}}
    </div>
    {{end}}

    {{if .WithChanges}}
    <div class="section">
      <h2>Entities with changes ({{len .WithChanges}})</h2>
      <ul>{{range .WithChanges}}<li>{{.EntityID}}: {{.Changed}} of {{.URLs}} pages changed</li>{{end}}</ul>
    </div>
    {{end}}

    {{if .Stable}}
    <div class="section">
      <h2>Stable ({{len .Stable}})</h2>
      <p class="meta">{{range $i, $e := .Stable}}{{if $i}}, {{end}}{{$e.EntityID}}{{end}}</p>
    </div>
    {{end}}

    {{if .WithErrors}}
    <div class="section">
      <h2>Errors ({{len .WithErrors}})</h2>
      <ul>{{range .WithErrors}}<li>{{.EntityID}}: {{.Errors}} of {{.URLs}} pages failed</li>{{end}}</ul>
    </div>
    {{end}}
  </div>
</body>
</html>
`
