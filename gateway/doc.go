/*
Package gateway assembles the gateway process.

A Gateway is built once from a Config. It owns every long-lived component and wires them
together:

  - the instrument identity (address, hardware address, firmware version, serial number
    and slot letter) read from the spec file, the EEPROM store and the network interface
  - the FIFO channel to the firmware core and the transaction coordinator on top of it
  - the GXIP session servers of the master port and slots 0..3, and the download manager
  - the host-configuration listener, the herald broadcaster and the mDNS advertisement

Gateway implements the backends consumed by the session handlers and the control channel,
so administrative commands such as assign-ip act on the same state the servers report.

Run starts every component under a task manager and blocks until the context is done.
*/
package gateway
