package config

// Sample is the starter configuration written by `counter-watch init`.
const Sample = `version: 1

global:
  db_path: counter-watch.db
  confirmations:
    evm: 2
    algorand: 0
  newest_first: true

api:
  addr: ":8088"
  leaderboard_limit: 10
  recent_events: 10

notify:
  seen_max: 100
  sweep_interval: 1m
  ignore_callers: []

sources:
  - id: counter_evm
    type: evm
    rpc_url: ${RPC_URL}
    contract: "0x0000000000000000000000000000000000000000"
    event: "CounterChanged(address,uint256,uint256,string)"
    abi_dirs: ["./abis"]
    start_block: "latest-5000"
    chunk_size: 5000

rules:
  - id: resets
    source: counter_evm
    where: ["reason == Reset"]
    sinks: ["slack"]
    rate:
      capacity: 5
      per_second: 0.1
  - id: all_changes
    where: []
    sinks: ["webhook"]

sinks:
  - id: slack
    type: slack
    webhook_url: ${SLACK_WEBHOOK_URL}
    template: "{{emoji .Reason}} Counter {{.Reason}}: {{.Change}} by {{short_addr .Caller}}"
  - id: webhook
    type: webhook
    url: http://localhost:9000/counter
    method: POST
`
