package server

const helpPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Stellar Ledger Query API</title>
<style>
body { font-family: sans-serif; max-width: 900px; margin: 2em auto; line-height: 1.5; }
code { background: #f3f3f3; padding: 2px 4px; }
.method { color: #fff; background: #2d7d46; padding: 2px 6px; border-radius: 3px; font-size: 0.8em; }
</style>
</head>
<body>
<h1>Stellar Ledger Query API</h1>
<p>Ledgers are read from the public archive. Ledgers not archived yet are
fetched from the live RPC node.</p>

<h2>Ledger parameter</h2>
<ul>
<li><code>ledger=63864</code> a single ledger</li>
<li><code>ledger=63864-63900</code> an inclusive range</li>
<li><code>ledger=-100</code> the 100 most recently closed ledgers</li>
</ul>

<h2><span class="method">GET</span> /all?ledger=</h2>
<p>One item per ledger: sequence, hash, close time, protocol version,
transaction count and base64 LedgerCloseMeta.</p>

<h2><span class="method">GET</span> /transactions?ledger=[&amp;address=]</h2>
<p>Every transaction in the range, or only those referencing <code>address</code>.</p>

<h2><span class="method">GET</span> /address?ledger=&amp;address=</h2>
<p>Transactions referencing an account (G...), muxed account (M...) or contract (C...)
as a source, fee source, operation field or contract argument.</p>

<h2><span class="method">GET</span> /contract?ledger=&amp;address=</h2>
<p>Transactions invoking or creating the contract <code>address</code>.</p>

<h2><span class="method">GET</span> /function?ledger=&amp;name=</h2>
<p>Transactions calling a contract function by name.</p>

<h2><span class="method">GET</span> /balance?address=&amp;token=</h2>
<p>Token balance simulated on the RPC node. <code>token</code> is a contract id or
one of <code>xlm</code>, <code>usdc</code>, <code>kale</code>.</p>

<h2><span class="method">GET</span> /health, /metrics, /help</h2>

<h2>Responses</h2>
<p>Range queries return <code>query</code>, <code>start_sequence</code>,
<code>end_sequence</code>, <code>ledgers_processed</code>, <code>count</code> and
<code>transactions</code> or <code>ledgers</code>. Ledgers that could not be read are
listed under <code>skipped</code> with a reason of <code>not_found</code>,
<code>decode_error</code> or <code>network_error</code>. Errors are
<code>{"error": "..."}</code> with status 400 for bad input, 422 when the token
contract rejects a balance call and 502 when the RPC node is unreachable.</p>
</body>
</html>
`
